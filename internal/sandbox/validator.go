package sandbox

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/agent-arena/agent-arena/internal/models"
)

// maxCodeLength bounds decompressor source size before any other check runs.
const maxCodeLength = 100000

// allowedModules is the import whitelist. Everything a decompressor
// legitimately needs is here; anything else is rejected even when it is
// not explicitly forbidden.
var allowedModules = map[string]bool{
	"collections": true, "heapq": true, "bisect": true, "array": true,
	"dataclasses": true, "enum": true, "typing": true,
	"math": true, "cmath": true, "decimal": true, "fractions": true,
	"random": true, "statistics": true,
	"string": true, "re": true, "struct": true, "codecs": true,
	"json": true, "base64": true, "binascii": true, "hashlib": true,
	"zlib": true, "gzip": true, "bz2": true, "lzma": true,
	"itertools": true, "functools": true, "operator": true,
	"time": true, "copy": true,
}

var forbiddenModules = map[string]bool{
	"os": true, "sys": true, "subprocess": true, "shutil": true,
	"pathlib": true, "glob": true, "fnmatch": true, "tempfile": true,
	"io": true, "socket": true, "http": true, "urllib": true,
	"requests": true, "httpx": true, "aiohttp": true, "websocket": true,
	"ssl": true, "ftplib": true, "smtplib": true, "poplib": true,
	"imaplib": true, "telnetlib": true,
	"multiprocessing": true, "threading": true, "concurrent": true,
	"_thread": true, "signal": true,
	"code": true, "codeop": true, "compile": true, "importlib": true,
	"runpy": true, "types": true, "builtins": true, "__builtins__": true,
	"inspect": true, "gc": true, "traceback": true, "linecache": true,
	"ctypes": true, "pickle": true, "shelve": true, "marshal": true,
	"pty": true, "tty": true, "termios": true, "fcntl": true,
	"resource": true, "mmap": true, "sysconfig": true, "fileinput": true,
	"stat": true, "filecmp": true,
}

var forbiddenBuiltins = map[string]bool{
	"eval": true, "exec": true, "compile": true, "__import__": true,
	"open": true, "input": true, "breakpoint": true,
	"globals": true, "locals": true, "vars": true, "dir": true,
	"getattr": true, "setattr": true, "delattr": true, "hasattr": true,
	"memoryview": true,
}

var forbiddenAttributes = map[string]bool{
	"__class__": true, "__bases__": true, "__subclasses__": true,
	"__mro__": true, "__globals__": true, "__code__": true,
	"__builtins__": true, "__import__": true, "__loader__": true,
	"__spec__": true, "__dict__": true, "__slots__": true,
}

var shellPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i);\s*(?:rm|cat|ls|wget|curl|nc|bash|sh|python)`),
	regexp.MustCompile(`(?i)\|\s*(?:sh|bash)`),
	regexp.MustCompile(`\$\(`),
	regexp.MustCompile("`[^`]+`"),
}

// dunderInString catches attribute access smuggled into f-string
// expressions, which the token walk sees only as string content.
var dunderInString = regexp.MustCompile(`\.\s*(__[A-Za-z0-9_]+__)`)

// Validator performs static analysis on decompressor source before it is
// handed to the execution sandbox. It never runs the code.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a piece of Python source against the import whitelist
// and the forbidden-construct tables. A result with Valid=false carries
// one violation string per finding.
func (v *Validator) Validate(code string) models.ValidationResult {
	if len(code) > maxCodeLength {
		return models.ValidationResult{
			Violations: []string{fmt.Sprintf("Code exceeds maximum length (%d > %d)", len(code), maxCodeLength)},
		}
	}

	toks, err := tokenize(code)
	if err != nil {
		return models.ValidationResult{
			Violations: []string{fmt.Sprintf("Syntax error: %s", err)},
		}
	}

	var violations []string
	importsSeen := make(map[string]bool)
	record := func(module string) {
		importsSeen[module] = true
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch t.kind {
		case tokenName:
			switch {
			case t.value == "import" && atStatementStart(toks, i):
				i = v.checkImport(toks, i+1, record, &violations)
			case t.value == "from" && atStatementStart(toks, i):
				i = v.checkFromImport(toks, i+1, record, &violations)
			case forbiddenBuiltins[t.value] && isBuiltinRef(toks, i):
				if isCallSite(toks, i) {
					violations = append(violations, fmt.Sprintf("Forbidden builtin: %s()", t.value))
				} else {
					violations = append(violations, fmt.Sprintf("Forbidden builtin reference: %s", t.value))
				}
			}
		case tokenOp:
			if t.value == "." && i+1 < len(toks) && toks[i+1].kind == tokenName && forbiddenAttributes[toks[i+1].value] {
				violations = append(violations, fmt.Sprintf("Forbidden attribute access: .%s", toks[i+1].value))
			}
		case tokenString:
			if forbiddenAttributes[t.value] {
				violations = append(violations, fmt.Sprintf("Suspicious string constant: '%s'", t.value))
			}
			for _, m := range dunderInString.FindAllStringSubmatch(t.value, -1) {
				if forbiddenAttributes[m[1]] {
					violations = append(violations, fmt.Sprintf("Forbidden attribute access: .%s", m[1]))
				}
			}
		}
	}

	for _, p := range shellPatterns {
		if p.MatchString(code) {
			violations = append(violations, "Suspicious shell-like pattern detected")
			break
		}
	}

	importsUsed := make([]string, 0, len(importsSeen))
	for m := range importsSeen {
		importsUsed = append(importsUsed, m)
	}
	sort.Strings(importsUsed)

	return models.ValidationResult{
		Valid:       len(violations) == 0,
		Violations:  violations,
		ImportsUsed: importsUsed,
	}
}

// checkImport consumes the names of an "import a.b, c as d" statement
// starting at the token after the import keyword. It returns the index of
// the last consumed token.
func (v *Validator) checkImport(toks []token, i int, record func(string), violations *[]string) int {
	for i < len(toks) {
		if toks[i].kind != tokenName {
			return i - 1
		}
		head := toks[i].value
		record(head)
		if msg, bad := moduleViolation(head, false); bad {
			*violations = append(*violations, msg)
		}
		i = skipDottedName(toks, i+1)
		if i < len(toks) && toks[i].kind == tokenName && toks[i].value == "as" {
			i += 2
		}
		if i < len(toks) && toks[i].kind == tokenOp && toks[i].value == "," {
			i++
			continue
		}
		return i - 1
	}
	return i - 1
}

// checkFromImport handles "from a.b import c". Relative imports with no
// module part ("from . import x") carry no module to check.
func (v *Validator) checkFromImport(toks []token, i int, record func(string), violations *[]string) int {
	for i < len(toks) && toks[i].kind == tokenOp && toks[i].value == "." {
		i++
	}
	if i >= len(toks) || toks[i].kind != tokenName {
		return i - 1
	}
	if toks[i].value == "import" {
		// Purely relative form; nothing to record.
		return i
	}
	head := toks[i].value
	record(head)
	if msg, bad := moduleViolation(head, true); bad {
		*violations = append(*violations, msg)
	}
	return skipDottedName(toks, i+1) - 1
}

func skipDottedName(toks []token, i int) int {
	for i+1 < len(toks) && toks[i].kind == tokenOp && toks[i].value == "." && toks[i+1].kind == tokenName {
		i += 2
	}
	return i
}

func moduleViolation(head string, fromForm bool) (string, bool) {
	display := head
	if fromForm {
		display = "from " + head
	}
	if forbiddenModules[head] {
		return fmt.Sprintf("Forbidden import: %s", display), true
	}
	if !allowedModules[head] {
		return fmt.Sprintf("Disallowed import: %s (not in whitelist)", display), true
	}
	return "", false
}

// atStatementStart reports whether the token at i begins a new statement.
func atStatementStart(toks []token, i int) bool {
	if i == 0 {
		return true
	}
	prev := toks[i-1]
	if prev.kind == tokenNewline {
		return true
	}
	return prev.kind == tokenOp && (prev.value == ";" || prev.value == ":")
}

// isBuiltinRef reports whether the name at i refers to the builtin rather
// than shadowing it. Attribute access (x.open) names a different object,
// and a def/class header binds a fresh name instead of referencing one.
// Anything else counts, called or not, so the builtin cannot be smuggled
// out through an alias like f = eval.
func isBuiltinRef(toks []token, i int) bool {
	if i == 0 {
		return true
	}
	prev := toks[i-1]
	if prev.kind == tokenOp && prev.value == "." {
		return false
	}
	if prev.kind == tokenName && (prev.value == "def" || prev.value == "class") {
		return false
	}
	return true
}

// isCallSite reports whether the name at i is immediately invoked.
func isCallSite(toks []token, i int) bool {
	return i+1 < len(toks) && toks[i+1].kind == tokenOp && toks[i+1].value == "("
}
