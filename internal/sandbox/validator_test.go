package sandbox

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAllowsTypicalDecompressor(t *testing.T) {
	code := "import zlib\n\ndef decompress(data):\n    return zlib.decompress(data)\n"

	result := NewValidator().Validate(code)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Violations)
	assert.Equal(t, []string{"zlib"}, result.ImportsUsed)
}

func TestValidateRejectsForbiddenImports(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		violation string
	}{
		{"plain import", "import os", "Forbidden import: os"},
		{"dotted import", "import os.path", "Forbidden import: os"},
		{"aliased import", "import subprocess as sp", "Forbidden import: subprocess"},
		{"second in list", "import zlib, sys", "Forbidden import: sys"},
		{"from import", "from os import path", "Forbidden import: from os"},
		{"from dotted", "from os.path import join", "Forbidden import: from os"},
		{"conditional import", "if True: import socket", "Forbidden import: socket"},
		{"after semicolon", "x = 1; import os", "Forbidden import: os"},
		{"line continuation", "import \\\nos", "Forbidden import: os"},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.code)
			assert.False(t, result.Valid)
			assert.Contains(t, result.Violations, tt.violation)
		})
	}
}

func TestValidateRejectsDisallowedImports(t *testing.T) {
	v := NewValidator()

	result := v.Validate("import numpy")
	require.False(t, result.Valid)
	assert.Contains(t, result.Violations, "Disallowed import: numpy (not in whitelist)")
	assert.Equal(t, []string{"numpy"}, result.ImportsUsed)

	result = v.Validate("from numpy import array")
	require.False(t, result.Valid)
	assert.Contains(t, result.Violations, "Disallowed import: from numpy (not in whitelist)")
}

func TestValidateRelativeImportWithoutModule(t *testing.T) {
	// "from . import x" names no module, so there is nothing to check
	// against the whitelist.
	result := NewValidator().Validate("from . import helper")

	assert.True(t, result.Valid)
	assert.Empty(t, result.ImportsUsed)
}

func TestValidateRejectsForbiddenBuiltins(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		violation string
	}{
		{"eval", "eval('1+1')", "Forbidden builtin: eval()"},
		{"exec", "exec(code)", "Forbidden builtin: exec()"},
		{"open", "open('/etc/passwd')", "Forbidden builtin: open()"},
		{"getattr", "getattr(obj, name)", "Forbidden builtin: getattr()"},
		{"dunder import", "__import__('os')", "Forbidden builtin: __import__()"},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.code)
			assert.False(t, result.Valid)
			assert.Contains(t, result.Violations, tt.violation)
		})
	}
}

func TestValidateBuiltinShadowing(t *testing.T) {
	v := NewValidator()

	// Defining a function named open binds a fresh name, and attribute
	// calls are method lookups, not builtins.
	for _, code := range []string{
		"def open(path):\n    return path\n",
		"codec.open()",
	} {
		result := v.Validate(code)
		assert.True(t, result.Valid, "code %q should pass", code)
	}
}

func TestValidateRejectsBuiltinAliasing(t *testing.T) {
	v := NewValidator()

	// A bare reference is enough to leak the builtin through an alias.
	result := v.Validate("x = [eval, 1]")
	assert.False(t, result.Valid)
	assert.Contains(t, result.Violations, "Forbidden builtin reference: eval")

	result = v.Validate("f = getattr\nf(obj, 'attr')")
	assert.False(t, result.Valid)
	assert.Contains(t, result.Violations, "Forbidden builtin reference: getattr")
}

func TestValidateRejectsForbiddenAttributes(t *testing.T) {
	tests := []struct {
		code      string
		violation string
	}{
		{"().__class__", "Forbidden attribute access: .__class__"},
		{"x.__globals__", "Forbidden attribute access: .__globals__"},
		{"obj.__dict__['x']", "Forbidden attribute access: .__dict__"},
		{"(1).__class__.__bases__", "Forbidden attribute access: .__bases__"},
	}

	v := NewValidator()
	for _, tt := range tests {
		result := v.Validate(tt.code)
		assert.False(t, result.Valid, "code %q", tt.code)
		assert.Contains(t, result.Violations, tt.violation)
	}
}

func TestValidateRejectsAttributeAccessInsideFString(t *testing.T) {
	result := NewValidator().Validate(`s = f"{x.__class__}"`)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Violations, "Forbidden attribute access: .__class__")
}

func TestValidateRejectsSuspiciousStringConstants(t *testing.T) {
	result := NewValidator().Validate(`name = "__subclasses__"`)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Violations, "Suspicious string constant: '__subclasses__'")
}

func TestValidateRejectsShellPatterns(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"semicolon command", `s = "; rm -rf /"`},
		{"pipe to shell", `s = "payload | sh"`},
		{"command substitution", `s = "$(whoami)"`},
		{"backticks", "s = '`id`'"},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.code)
			assert.False(t, result.Valid)
			assert.Contains(t, result.Violations, "Suspicious shell-like pattern detected")
		})
	}
}

func TestValidateShellPatternReportedOnce(t *testing.T) {
	result := NewValidator().Validate("a = '$(x)'\nb = '; rm -rf /'\nc = '| sh'\n")

	count := 0
	for _, v := range result.Violations {
		if v == "Suspicious shell-like pattern detected" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestValidateCodeTooLarge(t *testing.T) {
	code := strings.Repeat("x", maxCodeLength+1)

	result := NewValidator().Validate(code)

	require.False(t, result.Valid)
	require.Len(t, result.Violations, 1)
	assert.Equal(t,
		fmt.Sprintf("Code exceeds maximum length (%d > %d)", maxCodeLength+1, maxCodeLength),
		result.Violations[0])
}

func TestValidateSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"unterminated string", `s = "unclosed`},
		{"unclosed bracket", "x = (1, 2"},
		{"unmatched close", "x = 1)"},
		{"stray character", "x = 1 $ 2"},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.code)
			require.False(t, result.Valid)
			require.Len(t, result.Violations, 1)
			assert.True(t, strings.HasPrefix(result.Violations[0], "Syntax error: "),
				"got %q", result.Violations[0])
		})
	}
}

func TestValidateIgnoresImportsInStringsAndComments(t *testing.T) {
	code := "doc = \"import os\"\n# import sys\ns = 'eval(x)'\n"

	result := NewValidator().Validate(code)

	assert.True(t, result.Valid)
	assert.Empty(t, result.ImportsUsed)
}

func TestValidateAccumulatesViolations(t *testing.T) {
	code := "import os\nimport sys\neval('x')\ny.__dict__\n"

	result := NewValidator().Validate(code)

	require.False(t, result.Valid)
	assert.Len(t, result.Violations, 4)
	assert.Equal(t, []string{"os", "sys"}, result.ImportsUsed)
}

func TestValidateImportsUsedSorted(t *testing.T) {
	code := "import zlib\nimport base64\nimport json\n"

	result := NewValidator().Validate(code)

	require.True(t, result.Valid)
	assert.Equal(t, []string{"base64", "json", "zlib"}, result.ImportsUsed)
}

func TestValidateWhitelistCoverage(t *testing.T) {
	// Every whitelisted module imports cleanly on its own.
	v := NewValidator()
	for module := range allowedModules {
		result := v.Validate("import " + module)
		assert.True(t, result.Valid, "module %s should be importable", module)
	}
}

func TestValidateForbiddenBeatsWhitelist(t *testing.T) {
	// compile appears in both the builtin and module tables; importing it
	// is forbidden, not merely disallowed.
	result := NewValidator().Validate("import compile")

	require.False(t, result.Valid)
	assert.Contains(t, result.Violations, "Forbidden import: compile")
}
