package resolve

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidsmapper/internal/source"
	"bidsmapper/internal/template"
)

func ruleFrom(t *testing.T, entities string) *template.Rule {
	t.Helper()

	tpl, err := template.Parse([]byte("groups:\n  anat:\n    - entities: " + entities + "\n"))
	require.NoError(t, err)

	g, ok := tpl.Group("anat")
	require.True(t, ok)

	return g.Rules()[0]
}

func TestResolveReferences(t *testing.T) {
	rule := ruleFrom(t, "{acq: <ProtocolName><SeriesNumber>, rec: <Missing>, echo: 'e<EchoNumbers>', suffix: T1w}")
	attrs := source.Attributes{"ProtocolName": "mprage", "SeriesNumber": 7, "EchoNumbers": []int{1, 2}}

	values, err := Resolve(rule, attrs, &Context{})
	require.NoError(t, err)

	// rec resolves to "" and is omitted.
	assert.Equal(t, []string{"acq", "echo", "suffix"}, values.Names())
	assert.Equal(t, Values{
		{Entity: "acq", Value: "mprage7"},
		{Entity: "echo", Value: `e1\2`},
		{Entity: "suffix", Value: "T1w"},
	}, values)
}

func TestResolveSourceFilePath(t *testing.T) {
	rule := ruleFrom(t, "{sub: <<SourceFilePath>>, ses: <<SourceFilePath>>, acq: <<SourceFilePath>>}")
	ctx := NewContext("/raw/sub-001/ses-pre/007/IM1", DefaultSubjectPrefix, DefaultSessionPrefix, nil)

	values, err := Resolve(rule, source.Attributes{}, ctx)
	require.NoError(t, err)

	sub, _ := values.Get("sub")
	ses, _ := values.Get("ses")
	acq, _ := values.Get("acq")
	assert.Equal(t, "001", sub)
	assert.Equal(t, "pre", ses)
	assert.Equal(t, "/raw/sub-001/ses-pre/007/IM1", acq)
}

func TestPathLabels(t *testing.T) {
	tests := []struct {
		path     string
		sub, ses string
	}{
		{"/raw/sub-01/ses-02/IM1", "01", "02"},
		{"/raw/sub-01/IM1", "01", ""},
		{"sub-01", "", ""},
		{"/raw/sub-01/sub-02/ses-a/ses-b/x", "01", "a"},
		{`C:\raw\sub-x\ses-y\f.dcm`, "", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			sub, ses := PathLabels(tt.path, "sub-", "ses-")
			assert.Equal(t, tt.sub, sub)
			assert.Equal(t, tt.ses, ses)
		})
	}

	sub, ses := PathLabels("/raw/P01/V2/x", "P", "V")
	assert.Equal(t, "01", sub)
	assert.Equal(t, "2", ses)
}

func TestResolveCounterMonotonic(t *testing.T) {
	rule := ruleFrom(t, "{acq: <ProtocolName>, run: <<1>>, suffix: T1w}")
	counters := NewCounters()
	attrs := source.Attributes{"ProtocolName": "mprage"}

	for want := 1; want <= 5; want++ {
		values, err := Resolve(rule, attrs, NewContext("/raw/sub-01/ses-01/f", "sub-", "ses-", counters))
		require.NoError(t, err)

		run, ok := values.Get("run")
		require.True(t, ok)
		assert.Equal(t, want, mustAtoi(t, run))
	}

	// Different non-counter entities start their own sequence.
	values, err := Resolve(rule, source.Attributes{"ProtocolName": "other"}, NewContext("/raw/sub-01/ses-01/g", "sub-", "ses-", counters))
	require.NoError(t, err)

	run, _ := values.Get("run")
	assert.Equal(t, "1", run)

	// So does a different session.
	values, err = Resolve(rule, attrs, NewContext("/raw/sub-01/ses-02/f", "sub-", "ses-", counters))
	require.NoError(t, err)

	run, _ = values.Get("run")
	assert.Equal(t, "1", run)
	assert.Equal(t, 3, counters.Len())
}

func TestResolveSanitizedCounterKey(t *testing.T) {
	rule := ruleFrom(t, "{acq: <SeriesDescription>, run: <<1>>, suffix: T1w}")
	counters := NewCounters()

	resolveOne := func(desc string, sanitize bool) Values {
		ctx := NewContext("/raw/sub-01/f", DefaultSubjectPrefix, DefaultSessionPrefix, counters)
		ctx.Sanitize = sanitize

		values, err := Resolve(rule, source.Attributes{"SeriesDescription": desc}, ctx)
		require.NoError(t, err)

		return values
	}

	first := resolveOne("T1 mprage", true)
	second := resolveOne("T1_mprage", true)

	assert.Equal(t, Values{{Entity: "acq", Value: "T1mprage"}, {Entity: "run", Value: "1"}, {Entity: "suffix", Value: "T1w"}}, first)
	assert.Equal(t, Values{{Entity: "acq", Value: "T1mprage"}, {Entity: "run", Value: "2"}, {Entity: "suffix", Value: "T1w"}}, second)
	assert.Equal(t, 1, counters.Len())

	// Unsanitized values keep their own sequences.
	raw := resolveOne("T1 mprage", false)
	acq, _ := raw.Get("acq")
	run, _ := raw.Get("run")
	assert.Equal(t, "T1 mprage", acq)
	assert.Equal(t, "1", run)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "localizerT1w", Sanitize("localizer_T1w"))
	assert.Equal(t, "ab12", Sanitize("a-b 1.2"))
	assert.Equal(t, "", Sanitize("é_é"))
}

func TestResolveCounterStart(t *testing.T) {
	rule := ruleFrom(t, "{run: '<<0>>', suffix: bold}")
	counters := NewCounters()

	var got []string

	for range 3 {
		values, err := Resolve(rule, nil, &Context{Counters: counters})
		require.NoError(t, err)

		run, _ := values.Get("run")
		got = append(got, run)
	}

	assert.Equal(t, []string{"0", "1", "2"}, got)
}

func TestResolveCounterNeedsTable(t *testing.T) {
	rule := ruleFrom(t, "{run: <<1>>}")

	_, err := Resolve(rule, nil, &Context{})
	assert.ErrorContains(t, err, "no counter table")
}

func TestResolveCounterConcurrent(t *testing.T) {
	rule := ruleFrom(t, "{run: <<1>>, suffix: T1w}")
	counters := NewCounters()

	const n = 200

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]int{}
	)

	for range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			values, err := Resolve(rule, nil, &Context{Counters: counters})
			assert.NoError(t, err)

			run, _ := values.Get("run")

			mu.Lock()
			seen[run]++
			mu.Unlock()
		}()
	}

	wg.Wait()

	require.Len(t, seen, n)

	for run, count := range seen {
		assert.Equal(t, 1, count, run)
	}
}

func TestResolveChoicePolicy(t *testing.T) {
	tests := []struct {
		name        string
		entities    string
		preferences map[string]string
		expected    string
	}{
		{"explicit index", "{part: ['', mag, phase, 2]}", map[string]string{"part": "mag"}, "phase"},
		{"preference among candidates", "{part: [mag, phase, real]}", map[string]string{"part": "real"}, "real"},
		{"unknown preference ignored", "{part: [mag, phase]}", map[string]string{"part": "imag"}, "mag"},
		{"first element by default", "{part: [mag, phase]}", nil, "mag"},
		{"resolved candidates", "{acq: [<ProtocolName>, fallback]}", map[string]string{"acq": "fallback"}, "fallback"},
		{"references in first element", "{acq: [<ProtocolName>, fallback]}", nil, "mprage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := ruleFrom(t, tt.entities)

			values, err := Resolve(rule, source.Attributes{"ProtocolName": "mprage"}, &Context{Preferences: tt.preferences})
			require.NoError(t, err)
			require.Len(t, values, 1)
			assert.Equal(t, tt.expected, values[0].Value)
		})
	}
}

func TestResolveEmptyChoiceOmitted(t *testing.T) {
	rule := ruleFrom(t, "{part: ['', mag], suffix: T2w}")

	values, err := Resolve(rule, nil, &Context{})
	require.NoError(t, err)
	assert.Equal(t, []string{"suffix"}, values.Names())
}

func TestResolveCounterInChoice(t *testing.T) {
	rule := ruleFrom(t, "{run: [<<1>>, '', 1], suffix: T1w}")

	values, err := Resolve(rule, nil, &Context{Counters: NewCounters()})
	require.NoError(t, err)
	assert.Equal(t, []string{"suffix"}, values.Names())
}

func TestValuesHelpers(t *testing.T) {
	v := Values{{Entity: "acq", Value: "x"}, {Entity: "suffix", Value: "T1w"}}
	assert.Equal(t, "acq=x suffix=T1w", v.String())
	assert.Equal(t, map[string]string{"acq": "x", "suffix": "T1w"}, v.Map())

	_, ok := v.Get("run")
	assert.False(t, ok)
}

func TestCounters(t *testing.T) {
	c := NewCounters()
	key := CounterKey{Subject: "01", Group: "anat", Rule: "anat[0]"}

	_, ok := c.Peek(key)
	assert.False(t, ok)

	assert.Equal(t, 1, c.Next(key, 1))
	assert.Equal(t, 2, c.Next(key, 1))

	n, ok := c.Peek(key)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	c.Reset()
	assert.Zero(t, c.Len())
	assert.Equal(t, 1, c.Next(key, 1))
}

func TestResolveNilRule(t *testing.T) {
	_, err := Resolve(nil, nil, nil)
	assert.Error(t, err)
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()

	n := 0
	for _, r := range s {
		require.True(t, r >= '0' && r <= '9', s)
		n = n*10 + int(r-'0')
	}

	return n
}
