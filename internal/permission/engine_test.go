package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ag3ntum/ag3ntum/pkg/types"
)

func TestNewEngine_RejectsNonEmptyPermissionMode(t *testing.T) {
	_, err := NewEngine(&types.PermissionProfile{}, "bypassAll")
	require.Error(t, err)

	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewEngine_AcceptsEmptyPermissionMode(t *testing.T) {
	engine, err := NewEngine(&types.PermissionProfile{}, "")
	require.NoError(t, err)
	require.NotNil(t, engine)
}

func TestEngine_Activate_RejectsSecondActivation(t *testing.T) {
	engine, err := NewEngine(&types.PermissionProfile{}, "")
	require.NoError(t, err)

	require.NoError(t, engine.Activate("s1"))
	assert.Error(t, engine.Activate("s1"))
}

func TestEngine_CanUseTool_DisabledTool(t *testing.T) {
	profile := &types.PermissionProfile{DisabledTools: []string{"bash"}}
	engine, err := NewEngine(profile, "")
	require.NoError(t, err)

	result := engine.CanUseTool("bash", nil)
	assert.Equal(t, DecisionDeny, result.Decision)
	assert.True(t, result.Interrupt)
}

func TestEngine_CanUseTool_DenyPatternMatch(t *testing.T) {
	profile := &types.PermissionProfile{
		Deny: map[string][]string{"bash": {"rm -rf *"}},
	}
	engine, err := NewEngine(profile, "")
	require.NoError(t, err)

	result := engine.CanUseTool("bash", []string{"rm -rf /"})
	assert.Equal(t, DecisionDeny, result.Decision)
	assert.False(t, result.Interrupt)
	assert.Contains(t, result.Reason, "rm -rf *")
}

func TestEngine_CanUseTool_AllowPatternRequiresMatch(t *testing.T) {
	profile := &types.PermissionProfile{
		Allow: map[string][]string{"bash": {"git *"}},
	}
	engine, err := NewEngine(profile, "")
	require.NoError(t, err)

	ok := engine.CanUseTool("bash", []string{"git status"})
	assert.Equal(t, DecisionAllow, ok.Decision)

	denied := engine.CanUseTool("bash", []string{"curl evil.example"})
	assert.Equal(t, DecisionDeny, denied.Decision)
}

func TestEngine_CanUseTool_NoRulesDefaultsAllow(t *testing.T) {
	engine, err := NewEngine(&types.PermissionProfile{}, "")
	require.NoError(t, err)

	result := engine.CanUseTool("read", nil)
	assert.Equal(t, DecisionAllow, result.Decision)
}

func TestEngine_GetSandboxConfig_PerSessionCloneIsolation(t *testing.T) {
	profile := &types.PermissionProfile{
		Sandbox: types.SandboxConfig{
			Environment: types.SandboxEnvConfig{CustomEnv: map[string]string{"BASE": "1"}},
		},
	}
	engine, err := NewEngine(profile, "")
	require.NoError(t, err)
	engine.SetSessionContext("s1", "/ws", "/abs/ws", "alice")

	first := engine.GetSandboxConfig(map[string]string{"A": "1"})
	second := engine.GetSandboxConfig(map[string]string{"B": "2"})

	_, aLeaked := second.Environment.CustomEnv["A"]
	assert.False(t, aLeaked, "second call must not see the first call's session env")
	assert.Equal(t, "1", first.Environment.CustomEnv["A"])
	assert.Equal(t, "2", second.Environment.CustomEnv["B"])
}

func TestEngine_GetAllowedDirs_SubstitutesWorkspace(t *testing.T) {
	profile := &types.PermissionProfile{AllowedDirs: []string{"{workspace}/data", "/tmp/shared"}}
	engine, err := NewEngine(profile, "")
	require.NoError(t, err)
	engine.SetSessionContext("s1", "/ws/session1", "/abs/ws/session1", "alice")

	dirs := engine.GetAllowedDirs()
	assert.Equal(t, []string{"/ws/session1/data", "/tmp/shared"}, dirs)
}

func TestEngine_GetPermissionCheckedTools_DedupesAcrossAllowAndDeny(t *testing.T) {
	profile := &types.PermissionProfile{
		Allow: map[string][]string{"bash": {"git *"}},
		Deny:  map[string][]string{"bash": {"rm *"}, "webfetch": {"*"}},
	}
	engine, err := NewEngine(profile, "")
	require.NoError(t, err)

	tools := engine.GetPermissionCheckedTools()
	assert.ElementsMatch(t, []string{"bash", "webfetch"}, tools)
}
