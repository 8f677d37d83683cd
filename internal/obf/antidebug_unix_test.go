//go:build linux

package obf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPtraceTracemeRejectsSecondCall exercises the real kernel behavior
// installDebuggerAPITrap's IR assumes: a process already being traced gets
// an error back from a second PTRACE_TRACEME, the same "something is
// already attached" signal a debugger-present check relies on.
func TestPtraceTracemeRejectsSecondCall(t *testing.T) {
	require.NoError(t, ptraceSelfCheck(), "the first PTRACE_TRACEME on an untraced process must succeed")
	assert.Error(t, ptraceSelfCheck(), "a second PTRACE_TRACEME on an already-traced process must fail")
}
