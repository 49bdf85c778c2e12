package vm_test

// @generated from scriptcase_test.go

//go:generate go run ../../scripts/gen_expects.go -- scriptcase_test.go scriptcase_gen_test.go

func expectOutputCase(want string) func(scriptCase) scriptCase {
	return func(sc scriptCase) scriptCase {
		return sc.expectOutput(want)
	}
}

func expectRuntimeErrorCase(substr string) func(scriptCase) scriptCase {
	return func(sc scriptCase) scriptCase {
		return sc.expectRuntimeError(substr)
	}
}
