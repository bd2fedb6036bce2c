package limiter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func intPtr(i int) *int { return &i }

func TestParser_Parse(t *testing.T) {
	tests := []struct {
		name      string
		rules     []Rule
		wantErr   bool
		wantIndex int
		errMsg    string
		wantLen   int
	}{
		{
			name:    "nil list is permissive",
			rules:   nil,
			wantLen: 0,
		},
		{
			name: "valid rules",
			rules: []Rule{
				{Scope: AtomList{"check"}, Selection: AtomList{"name"}, Limit: intPtr(10)},
				{Scope: AtomList{"check", "instance"}, Selection: AtomList{"name", "tags"}},
			},
			wantLen: 2,
		},
		{
			name:      "missing scope",
			rules:     []Rule{{Selection: AtomList{"name"}}},
			wantErr:   true,
			wantIndex: 0,
			errMsg:    "limiters[0].scope: is required",
		},
		{
			name:      "missing selection",
			rules:     []Rule{{Scope: AtomList{"check"}, Selection: AtomList{}}},
			wantErr:   true,
			wantIndex: 0,
			errMsg:    "limiters[0].selection: is required",
		},
		{
			name: "unknown atom fails the whole parse",
			rules: []Rule{
				{Scope: AtomList{"check"}, Selection: AtomList{"name"}},
				{Scope: AtomList{"check"}, Selection: AtomList{"hostname"}},
			},
			wantErr:   true,
			wantIndex: 1,
			errMsg:    `limiters[1].selection: unknown atom "hostname"`,
		},
		{
			name:      "zero limit",
			rules:     []Rule{{Scope: AtomList{"check"}, Selection: AtomList{"name"}, Limit: intPtr(0)}},
			wantErr:   true,
			wantIndex: 0,
			errMsg:    "limiters[0].limit: must be a positive integer",
		},
	}

	parser := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiters, err := parser.Parse(tt.rules)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, limiters)
				assert.Equal(t, tt.errMsg, err.Error())
				assert.True(t, errors.Is(err, ErrInvalidConfig))

				var cfgErr *ConfigError
				require.True(t, errors.As(err, &cfgErr))
				assert.Equal(t, tt.wantIndex, cfgErr.Index)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, limiters)
			assert.Len(t, limiters, tt.wantLen)
		})
	}
}

func TestParser_Parse_PreservesOrderAndDefinitions(t *testing.T) {
	limiters, err := NewParser().Parse([]Rule{
		{Scope: AtomList{"instance"}, Selection: AtomList{"tags"}, Limit: intPtr(2)},
		{Scope: AtomList{"check"}, Selection: AtomList{"name"}},
	})
	require.NoError(t, err)
	require.Len(t, limiters, 2)

	first := limiters[0].Definition()
	assert.Equal(t, []string{"instance"}, first.Scope)
	assert.Equal(t, []string{"tags"}, first.Selection)
	assert.Equal(t, 2, *first.Limit)

	second := limiters[1].Definition()
	assert.Equal(t, []string{"check"}, second.Scope)
	assert.Nil(t, second.Limit)
}

func TestParser_CustomAtoms(t *testing.T) {
	parser := NewParser("key1", "key2")
	assert.True(t, parser.Atoms().Contains("key1"))
	assert.False(t, parser.Atoms().Contains("name"))

	_, err := parser.Parse([]Rule{{Scope: AtomList{"key1"}, Selection: AtomList{"name"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"name"`)
}

func TestParser_ParseDocument(t *testing.T) {
	tests := []struct {
		name     string
		document string
		wantErr  bool
		want     []Definition
	}{
		{
			name: "yaml with scalar and list atoms",
			document: `
limiters:
  - scope: check
    selection: name
    limit: 1
  - scope: [check, instance]
    selection:
      - name
      - tags
`,
			want: []Definition{
				{Scope: []string{"check"}, Selection: []string{"name"}, Limit: intPtr(1)},
				{Scope: []string{"check", "instance"}, Selection: []string{"name", "tags"}},
			},
		},
		{
			name:     "json document",
			document: `{"limiters": [{"scope": "check", "selection": ["name"], "limit": 3}]}`,
			want: []Definition{
				{Scope: []string{"check"}, Selection: []string{"name"}, Limit: intPtr(3)},
			},
		},
		{
			name:     "absent limiters key",
			document: `other: value`,
			want:     []Definition{},
		},
		{
			name: "legacy metric name shorthand",
			document: `
limiters:
  - scope: check
    selection: tags
limit_metric_name_number:
  scope: [instance, check]
  limit: 50
`,
			want: []Definition{
				{Scope: []string{"check"}, Selection: []string{"tags"}},
				{Scope: []string{"instance", "check"}, Selection: []string{"name"}, Limit: intPtr(50)},
			},
		},
		{
			name:     "scope mapping is rejected",
			document: "limiters:\n  - scope: {a: b}\n    selection: name\n",
			wantErr:  true,
		},
		{
			name:     "unknown atom",
			document: "limiters:\n  - scope: host\n    selection: name\n",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiters, err := NewParser().ParseDocument([]byte(tt.document))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			got := make([]Definition, 0, len(limiters))
			for _, l := range limiters {
				got = append(got, l.Definition())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAtomList_UnmarshalJSON(t *testing.T) {
	var rule Rule
	require.NoError(t, rule.Scope.UnmarshalJSON([]byte(`"check"`)))
	assert.Equal(t, AtomList{"check"}, rule.Scope)

	require.NoError(t, rule.Scope.UnmarshalJSON([]byte(`["check","instance"]`)))
	assert.Equal(t, AtomList{"check", "instance"}, rule.Scope)

	require.NoError(t, rule.Scope.UnmarshalJSON([]byte(`null`)))
	assert.Nil(t, rule.Scope)

	assert.Error(t, rule.Scope.UnmarshalJSON([]byte(`{"a":1}`)))
}

func TestRule_MarshalYAML(t *testing.T) {
	data, err := yaml.Marshal(Rule{Scope: AtomList{"check"}, Selection: AtomList{"name"}, Limit: intPtr(5)})
	require.NoError(t, err)

	var decoded Rule
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, AtomList{"check"}, decoded.Scope)
	assert.Equal(t, 5, *decoded.Limit)
}
