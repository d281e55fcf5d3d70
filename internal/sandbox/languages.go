package sandbox

import (
	_ "embed"

	"dev.synaq.judge/internal/models"
)

//go:embed harness/py_runner.py
var pyHarness string

//go:embed harness/cpp_runner.py
var cppHarness string

//go:embed harness/cs_runner.py
var csHarness string

// langSpec describes how one language is compiled and run inside its image.
// The registry is fixed; there are no pluggable backends.
type langSpec struct {
	Image      string
	SourceFile string
	Harness    string
}

var registry = map[models.Language]langSpec{
	models.LanguagePython: {Image: "judge-python", SourceFile: "script.py", Harness: pyHarness},
	models.LanguageCPP:    {Image: "judge-cpp", SourceFile: "source.cpp", Harness: cppHarness},
	models.LanguageCSharp: {Image: "judge-csharp", SourceFile: "Program.cs", Harness: csHarness},
}

// Supported reports whether the language is in the fixed registry.
func Supported(lang models.Language) bool {
	_, ok := registry[lang]
	return ok
}
