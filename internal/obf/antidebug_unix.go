//go:build linux

package obf

import "golang.org/x/sys/unix"

// ptraceSelfCheck exercises the real PTRACE_TRACEME syscall the IR emitted
// by AntiDebuggingPass only describes. A traced process gets EPERM back
// from a second PTRACE_TRACEME call; this lets antidebug_unix_test.go
// assert that the "−1 return means a tracer is already attached" sense
// baked into installDebuggerAPITrap actually matches what the Linux kernel
// does, rather than trusting the original's comment.
func ptraceSelfCheck() error {
	return unix.PtraceTraceme()
}
