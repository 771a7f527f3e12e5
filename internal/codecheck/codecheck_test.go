package codecheck

import (
	"strings"
	"testing"
)

func TestValidate_DeniedConstructs(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		class string
	}{
		{"require call", `const fs = require("fs")`, "dynamic module loading"},
		{"import call", `import("./mod")`, "dynamic module loading"},
		{"load call", `load("module.star", "helper")`, "dynamic module loading"},
		{"import statement", "import os", "dynamic module loading"},
		{"dunder import", `__import__("os")`, "dynamic module loading"},

		{"process dot", `process.exit(1)`, "process access"},
		{"globalThis", `globalThis.secret`, "process access"},
		{"Deno", `Deno.readTextFile("x")`, "process access"},

		{"fs dot", `fs.readdirSync(".")`, "filesystem access"},
		{"open call", `f = open("/etc/passwd")`, "filesystem access"},
		{"readFileSync", `readFileSync("x")`, "filesystem access"},
		{"pathlib", `pathlib`, "filesystem access"},

		{"child_process", `child_process`, "subprocess spawning"},
		{"spawn", `spawnSync("ls")`, "subprocess spawning"},
		{"subprocess", `subprocess`, "subprocess spawning"},
		{"popen", `popen`, "subprocess spawning"},
		{"system call", `system("rm -rf /")`, "subprocess spawning"},

		{"fetch", `fetch("x")`, "network access"},
		{"http url", `url = "http://example.com"`, "network access"},
		{"https url uppercase", `HTTPS://example.com`, "network access"},
		{"websocket url", `ws://example.com`, "network access"},
		{"socket", `socket`, "network access"},
		{"urllib", `urllib`, "network access"},

		{"eval", `eval("1+1")`, "dynamic code evaluation"},
		{"Function constructor", `Function("return 1")`, "dynamic code evaluation"},
		{"new Function", `new Function`, "dynamic code evaluation"},
		{"exec", `exec("code")`, "dynamic code evaluation"},
		{"compile", `compile("code")`, "dynamic code evaluation"},

		{"setTimeout", `setTimeout`, "timer scheduling"},
		{"setInterval", `setInterval`, "timer scheduling"},

		{"proto", `x.__proto__`, "prototype tampering"},
		{"prototype", `Array.prototype`, "prototype tampering"},
		{"Object.defineProperty", `Object.defineProperty(o, "k", {})`, "prototype tampering"},

		{"env bracket", `env["SECRET"]`, "environment access"},
		{"getenv", `getenv`, "environment access"},
		{"ENV constant", `ENV`, "environment access"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.code)
			if res.Valid {
				t.Fatalf("expected invalid for %q", tt.code)
			}
			found := false
			for _, v := range res.Violations {
				if v.Class == tt.class {
					found = true
				}
			}
			if !found {
				t.Errorf("expected class %q in violations, got %+v", tt.class, res.Violations)
			}
		})
	}
}

func TestValidate_AllowedCode(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"empty", ""},
		{"arithmetic", "return 1 + 1"},
		{"string ops", `return "hello " + name`},
		{"list comprehension", "return [x * 2 for x in items]"},
		{"conditional", "if n > 0:\n    return n\nreturn -n"},
		{"loop", "total = 0\nfor x in values:\n    total += x\nreturn total"},
		{"fetch as substring of identifier", "prefetched = 1\nreturn prefetched"},
		{"importance is not import", "importance = 5\nreturn importance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.code)
			if !res.Valid {
				t.Errorf("expected valid, got violations %+v", res.Violations)
			}
		})
	}
}

func TestValidate_AllClassesReported(t *testing.T) {
	code := `eval(open(fetch("http://x")))` + "\n" + `process.exit(setTimeout)`
	res := Validate(code)
	if res.Valid {
		t.Fatal("expected invalid")
	}

	classes := map[string]bool{}
	for _, v := range res.Violations {
		if classes[v.Class] {
			t.Errorf("class %q reported more than once", v.Class)
		}
		classes[v.Class] = true
	}
	for _, want := range []string{
		"dynamic code evaluation",
		"filesystem access",
		"network access",
		"process access",
		"timer scheduling",
	} {
		if !classes[want] {
			t.Errorf("expected class %q, got %v", want, classes)
		}
	}
}

func TestValidate_Deterministic(t *testing.T) {
	code := `eval(fetch("http://x"))`
	first := Validate(code)
	for i := 0; i < 5; i++ {
		res := Validate(code)
		if len(res.Violations) != len(first.Violations) {
			t.Fatalf("violation count changed between runs: %d vs %d",
				len(res.Violations), len(first.Violations))
		}
		for j := range res.Violations {
			if res.Violations[j] != first.Violations[j] {
				t.Errorf("violation %d changed: %+v vs %+v", j, res.Violations[j], first.Violations[j])
			}
		}
	}
}

func TestInvalidCodeError_Message(t *testing.T) {
	res := Validate(`eval(fetch("http://x"))`)
	err := &InvalidCodeError{Violations: res.Violations}
	msg := err.Error()
	if !strings.Contains(msg, "code validation failed") {
		t.Errorf("unexpected message %q", msg)
	}
	if !strings.Contains(msg, "dynamic code evaluation") || !strings.Contains(msg, "network access") {
		t.Errorf("expected both classes in message, got %q", msg)
	}
}

func TestResult_Reasons(t *testing.T) {
	res := Validate(`eval("x")`)
	reasons := res.Reasons()
	if len(reasons) != 1 {
		t.Fatalf("expected one reason, got %v", reasons)
	}
	if !strings.Contains(reasons[0], "dynamic code evaluation") {
		t.Errorf("unexpected reason %q", reasons[0])
	}
	if !strings.Contains(reasons[0], "eval(") {
		t.Errorf("expected matched construct in reason, got %q", reasons[0])
	}
}
