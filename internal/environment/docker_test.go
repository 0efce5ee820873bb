package environment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecScript(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"no dir", Command{Script: "cargo fmt --check"}, "cargo fmt --check"},
		{"relative dir", Command{Script: "cargo test --doc", Dir: "crates/core"}, "cd '/workspace/crates/core' && cargo test --doc"},
		{"cleaned dir", Command{Script: "ls", Dir: "./a//b/"}, "cd '/workspace/a/b' && ls"},
		{"dir with quote", Command{Script: "ls", Dir: "it's"}, `cd '/workspace/it'\''s' && ls`},
		{"dir with spaces", Command{Script: "make", Dir: "my dir"}, "cd '/workspace/my dir' && make"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, execScript("/workspace", tt.cmd))
		})
	}
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "''", shellQuote(""))
	assert.Equal(t, "'$HOME'", shellQuote("$HOME"))
	assert.Equal(t, `'a'\''b'`, shellQuote("a'b"))
}

func TestDockerExecBeforeSetup(t *testing.T) {
	d := &Docker{Image: "rust:1.79", WorkDir: "/src", MountPath: "/workspace"}
	_, err := d.Exec(context.Background(), Command{Script: "true"})
	assert.Error(t, err)
}
