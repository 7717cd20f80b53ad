package sandbox

// harnessSource is the Python worker the executor spawns for each
// evaluation. It reads one JSON request on stdin, applies kernel resource
// limits, runs the submitted code under a restricted builtin namespace and
// writes one JSON result line on stdout. It deliberately has no access to
// anything outside the request, so a compromised submission can at worst
// corrupt its own result.
//
// The namespace mirrors the validator's whitelist: a guarded __import__
// resolves whitelisted modules only, and the builtin table contains plain
// data constructors plus arithmetic helpers. Introspection builtins are
// absent entirely rather than stubbed.
const harnessSource = `
import sys, json, base64, io, time, traceback
import builtins as _builtins

ALLOWED_MODULES = frozenset([
    "collections", "heapq", "bisect", "array", "dataclasses", "enum",
    "typing", "math", "cmath", "decimal", "fractions", "random",
    "statistics", "string", "re", "struct", "codecs", "json", "base64",
    "binascii", "hashlib", "zlib", "gzip", "bz2", "lzma", "itertools",
    "functools", "operator", "time", "copy",
])

PREIMPORTED_MODULES = (
    "zlib", "gzip", "bz2", "lzma", "hashlib", "base64", "struct", "json",
    "math", "itertools", "functools", "collections", "heapq", "bisect",
    "re", "copy", "time",
)

SAFE_BUILTIN_NAMES = (
    "int", "float", "bool", "str", "bytes", "bytearray", "list", "tuple",
    "dict", "set", "frozenset",
    "abs", "all", "any", "bin", "chr", "divmod", "enumerate", "filter",
    "hex", "isinstance", "issubclass", "iter", "len", "map", "max", "min",
    "next", "oct", "ord", "pow", "print", "range", "repr", "reversed",
    "round", "slice", "sorted", "sum", "zip",
    "Exception", "ValueError", "TypeError", "KeyError", "IndexError",
    "RuntimeError", "StopIteration", "ZeroDivisionError", "OverflowError",
)


class _Timeout(Exception):
    pass


def _apply_limits(timeout_s, memory_mb):
    try:
        import resource
        mem = memory_mb * 1024 * 1024
        resource.setrlimit(resource.RLIMIT_AS, (mem, mem))
        resource.setrlimit(resource.RLIMIT_CPU, (timeout_s, timeout_s + 1))
        resource.setrlimit(resource.RLIMIT_NPROC, (0, 0))
        resource.setrlimit(resource.RLIMIT_FSIZE, (0, 0))
        resource.setrlimit(resource.RLIMIT_CORE, (0, 0))
    except Exception as e:
        sys.stderr.write("Warning: Could not set resource limits: %s\n" % e)


def _install_cpu_guard():
    try:
        import signal

        def _on_xcpu(signum, frame):
            raise _Timeout()

        signal.signal(signal.SIGXCPU, _on_xcpu)
    except Exception:
        pass


def _safe_import_factory():
    real_import = __import__

    def _safe_import(name, globals=None, locals=None, fromlist=(), level=0):
        if level != 0:
            raise ImportError("relative imports are not allowed in the sandbox")
        if name.split(".")[0] not in ALLOWED_MODULES:
            raise ImportError("import of '%s' is not allowed in the sandbox" % name)
        return real_import(name, globals, locals, fromlist, level)

    return _safe_import


def _build_env():
    safe = {"None": None, "True": True, "False": False,
            "__import__": _safe_import_factory()}
    for name in SAFE_BUILTIN_NAMES:
        safe[name] = getattr(_builtins, name)
    env = {"__builtins__": safe, "__name__": "__sandbox__", "__doc__": None}
    for mod in PREIMPORTED_MODULES:
        env[mod] = __import__(mod)
    return env


def _main():
    req = json.load(sys.stdin)
    code = req.get("code", "")
    entry = req.get("entry", "decompress")
    args = [base64.b64decode(a) for a in req.get("args", [])]
    timeout_s = int(req.get("timeout_seconds", 60))
    memory_mb = int(req.get("memory_mb", 512))
    max_output = int(req.get("max_output_bytes", 10 * 1024 * 1024))

    out = {
        "success": False,
        "result_b64": "",
        "result_json": None,
        "result_type": "",
        "error": "",
        "error_type": "",
        "stdout": "",
        "stderr": "",
        "execution_time_ms": 0,
        "memory_used_bytes": 0,
    }

    _apply_limits(timeout_s, memory_mb)
    _install_cpu_guard()
    env = _build_env()

    cap_out = io.StringIO()
    cap_err = io.StringIO()
    old_out, old_err = sys.stdout, sys.stderr
    sys.stdout, sys.stderr = cap_out, cap_err
    result_value = None
    started = time.monotonic()
    try:
        compiled = compile(code, "<submission>", "exec")
        exec(compiled, env)
        if entry not in env:
            raise ValueError("Entry function '%s' not found in code" % entry)
        fn = env[entry]
        if not callable(fn):
            raise ValueError("'%s' is not callable" % entry)
        result_value = fn(*args)
        out["success"] = True
    except SyntaxError as e:
        out["error"] = "Syntax error: %s" % e
        out["error_type"] = "ValidationError"
    except _Timeout:
        out["error"] = "Execution timeout (%ds)" % timeout_s
        out["error_type"] = "TimeoutError"
    except MemoryError:
        out["error"] = "Memory limit exceeded"
        out["error_type"] = "MemoryError"
    except BaseException as e:
        out["error"] = "%s: %s" % (type(e).__name__, e)
        out["error_type"] = "RuntimeError"
        traceback.print_exc(file=cap_err)
    finally:
        sys.stdout, sys.stderr = old_out, old_err
        out["execution_time_ms"] = int((time.monotonic() - started) * 1000)
        out["stdout"] = cap_out.getvalue()[:max_output]
        out["stderr"] = cap_err.getvalue()[:max_output]
        try:
            import resource
            out["memory_used_bytes"] = resource.getrusage(resource.RUSAGE_SELF).ru_maxrss * 1024
        except Exception:
            pass

    if out["success"]:
        try:
            rv = result_value
            out["result_type"] = type(rv).__name__
            if isinstance(rv, (bytes, bytearray)):
                out["result_b64"] = base64.b64encode(bytes(rv)).decode("ascii")
            else:
                try:
                    json.dumps(rv)
                    out["result_json"] = rv
                except (TypeError, ValueError):
                    out["result_json"] = None
        except MemoryError:
            out["success"] = False
            out["result_b64"] = ""
            out["error"] = "Memory limit exceeded"
            out["error_type"] = "MemoryError"

    json.dump(out, sys.stdout)
    sys.stdout.write("\n")
    sys.stdout.flush()


_main()
`
