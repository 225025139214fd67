package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	material := KeyMaterial{
		StepID:        "run-tests",
		Config:        map[string]any{"command": "pytest", "timeout": 60},
		Inputs:        map[string]any{"branch": "main", "coverage_min": 80},
		EngineVersion: "1.0.0",
		ProfileName:   "restricted",
	}

	first, err := DeriveKey(material, "")
	require.NoError(t, err)
	second, err := DeriveKey(material, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestDeriveKey_InputSensitivity(t *testing.T) {
	base := KeyMaterial{
		StepID:        "run-tests",
		Config:        map[string]any{"command": "pytest"},
		Inputs:        map[string]any{"branch": "main"},
		EngineVersion: "1.0.0",
		ProfileName:   "restricted",
	}
	baseKey, err := DeriveKey(base, "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(m *KeyMaterial)
	}{
		{name: "step id", mutate: func(m *KeyMaterial) { m.StepID = "other-step" }},
		{name: "config", mutate: func(m *KeyMaterial) { m.Config = map[string]any{"command": "go test"} }},
		{name: "input value", mutate: func(m *KeyMaterial) { m.Inputs = map[string]any{"branch": "develop"} }},
		{name: "engine version", mutate: func(m *KeyMaterial) { m.EngineVersion = "2.0.0" }},
		{name: "profile", mutate: func(m *KeyMaterial) { m.ProfileName = "standard" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base
			tt.mutate(&m)
			key, err := DeriveKey(m, "")
			require.NoError(t, err)
			assert.NotEqual(t, baseKey, key)
		})
	}
}

func TestDeriveKey_FragmentNamespacesButKeepsHash(t *testing.T) {
	material := KeyMaterial{
		StepID:      "build",
		Inputs:      map[string]any{"branch": "main"},
		ProfileName: "standard",
	}

	plain, err := DeriveKey(material, "")
	require.NoError(t, err)
	namespaced, err := DeriveKey(material, "team-a")
	require.NoError(t, err)

	assert.Equal(t, "team-a:"+plain, namespaced, "the fragment prefixes the derived hash, it never replaces it")

	// Same fragment, different inputs: still distinct keys.
	material.Inputs = map[string]any{"branch": "develop"}
	other, err := DeriveKey(material, "team-a")
	require.NoError(t, err)
	assert.NotEqual(t, namespaced, other)
}

func TestDeriveKeyProperties(t *testing.T) {
	t.Run("identical material always derives identical keys", rapid.MakeCheck(func(t *rapid.T) {
		stepID := rapid.StringMatching(`[a-z][a-z0-9-]{0,20}`).Draw(t, "stepID")
		inputKeys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z_]{1,10}`), 0, 5, rapid.ID[string]).Draw(t, "inputKeys")

		inputs := make(map[string]any, len(inputKeys))
		for _, k := range inputKeys {
			inputs[k] = rapid.IntRange(-1000, 1000).Draw(t, "val_"+k)
		}

		material := KeyMaterial{
			StepID:        stepID,
			Inputs:        inputs,
			EngineVersion: "1.0.0",
			ProfileName:   "restricted",
		}

		first, err := DeriveKey(material, "")
		if err != nil {
			t.Fatalf("derive failed: %v", err)
		}
		second, err := DeriveKey(material, "")
		if err != nil {
			t.Fatalf("derive failed: %v", err)
		}
		if first != second {
			t.Fatalf("key not deterministic: %s vs %s", first, second)
		}
	}))

	t.Run("changing one input value changes the key", rapid.MakeCheck(func(t *rapid.T) {
		name := rapid.StringMatching(`[a-z_]{1,10}`).Draw(t, "name")
		before := rapid.IntRange(0, 1000).Draw(t, "before")
		delta := rapid.IntRange(1, 1000).Draw(t, "delta")

		material := KeyMaterial{
			StepID:      "step",
			Inputs:      map[string]any{name: before},
			ProfileName: "restricted",
		}
		first, err := DeriveKey(material, "")
		if err != nil {
			t.Fatalf("derive failed: %v", err)
		}

		material.Inputs = map[string]any{name: before + delta}
		second, err := DeriveKey(material, "")
		if err != nil {
			t.Fatalf("derive failed: %v", err)
		}
		if first == second {
			t.Fatalf("distinct inputs derived the same key")
		}
	}))
}

func TestDeriveKey_MapOrderIrrelevant(t *testing.T) {
	// Maps built in different insertion orders canonicalize identically.
	a := map[string]any{}
	a["x"] = 1
	a["y"] = 2
	a["z"] = 3

	b := map[string]any{}
	b["z"] = 3
	b["x"] = 1
	b["y"] = 2

	keyA, err := DeriveKey(KeyMaterial{StepID: "s", Inputs: a}, "")
	require.NoError(t, err)
	keyB, err := DeriveKey(KeyMaterial{StepID: "s", Inputs: b}, "")
	require.NoError(t, err)
	assert.Equal(t, keyA, keyB)
}
