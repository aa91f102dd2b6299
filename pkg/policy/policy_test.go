package policy

import (
	"testing"

	"github.com/cuemby/clusterrouter/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		command string
		wantOK  bool
	}{
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"rm -rf root", "rm -rf /", false},
		{"rm -rf root glob", "rm -rf /*", false},
		{"sudo rm -rf root", "sudo rm -rf /", false},
		{"rm -rf subdir allowed", "rm -rf /etc", true},
		{"dd to block device", "dd if=/dev/zero of=/dev/sda", false},
		{"fork bomb", ":(){ :|:& };:", false},
		{"pipe allowed", "ls | grep test", true},
		{"command substitution allowed", "echo $(whoami)", true},
		{"backtick substitution allowed", "echo `hostname`", true},
		{"semicolon chain allowed", "echo test; ls", true},
		{"redirection allowed", "echo test > file.txt", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := Validate(tc.command)
			assert.Equal(t, tc.wantOK, ok)
			if !tc.wantOK {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestShouldOffloadHeavyPattern(t *testing.T) {
	patterns := config.Patterns{
		Heavy:   []string{"make", "docker"},
		Trivial: []string{"ls", "pwd"},
	}
	thresholds := config.Thresholds{CPUPercent: 40, LoadAvg1: 4, MemPercent: 85}
	sample := LoadSample{CPUPercent: 1, LoadAvg1: 0.1, MemPercent: 10}

	assert.True(t, ShouldOffload("make build", patterns, sample, thresholds))
	assert.True(t, ShouldOffload("docker ps", patterns, sample, thresholds))
}

func TestShouldOffloadTrivialPatternStaysLocal(t *testing.T) {
	patterns := config.Patterns{
		Heavy:   []string{"make"},
		Trivial: []string{"ls", "pwd", "echo"},
	}
	thresholds := config.Thresholds{CPUPercent: 40, LoadAvg1: 4, MemPercent: 85}
	sample := LoadSample{CPUPercent: 1, LoadAvg1: 0.1, MemPercent: 10}

	assert.False(t, ShouldOffload("ls -la", patterns, sample, thresholds))
	assert.False(t, ShouldOffload("echo hi", patterns, sample, thresholds))
}

func TestShouldOffloadOverloadedNode(t *testing.T) {
	patterns := config.Patterns{Heavy: []string{"make"}, Trivial: []string{"ls"}}
	thresholds := config.Thresholds{CPUPercent: 40, LoadAvg1: 4, MemPercent: 85}

	overloaded := LoadSample{CPUPercent: 90, LoadAvg1: 0.1, MemPercent: 10}
	assert.True(t, ShouldOffload("some-other-command", patterns, overloaded, thresholds))

	notOverloaded := LoadSample{CPUPercent: 1, LoadAvg1: 0.1, MemPercent: 10}
	assert.False(t, ShouldOffload("some-other-command", patterns, notOverloaded, thresholds))
}

func TestShouldOffloadTrivialButOverloadedStillOffloads(t *testing.T) {
	patterns := config.Patterns{Heavy: []string{}, Trivial: []string{"ls"}}
	thresholds := config.Thresholds{CPUPercent: 40, LoadAvg1: 4, MemPercent: 85}
	overloaded := LoadSample{CPUPercent: 99, LoadAvg1: 9, MemPercent: 99}

	assert.True(t, ShouldOffload("ls -la", patterns, overloaded, thresholds))
}
