// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"
	"time"
)

type embeddedParams struct {
	JSONOutput
	Limit int `flag:"limit,n" desc:"rows" default:"20"`
}

func TestBindFlagsDefaultsAndParsing(t *testing.T) {
	t.Parallel()

	var params struct {
		embeddedParams
		Model    string        `flag:"model" desc:"model" default:"gpt-4o-mini"`
		Cost     float64       `flag:"cost" desc:"budget"`
		Timeout  time.Duration `flag:"timeout" desc:"ceiling" default:"60s"`
		MaxSteps uint64        `flag:"max-steps" desc:"steps"`
		Debug    bool          `flag:"debug" desc:"debug logging"`
		ignored  string
	}
	flagSet := FlagsFromParams("run", &params)

	if params.Limit != 20 || params.Model != "gpt-4o-mini" || params.Timeout != time.Minute {
		t.Errorf("defaults not applied: %+v", params)
	}
	err := flagSet.Parse([]string{"--json", "-n", "5", "--cost=0.25", "--timeout", "2s", "--max-steps", "1000", "--debug"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !params.OutputJSON || params.Limit != 5 || params.Cost != 0.25 || params.Timeout != 2*time.Second ||
		params.MaxSteps != 1000 || !params.Debug {
		t.Errorf("parsed params = %+v", params)
	}
	_ = params.ignored
}

func TestBindFlagsRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params any
		want   string
	}{
		{name: "not a pointer", params: struct{}{}, want: "pointer to a struct"},
		{name: "unsupported type", params: &struct {
			Values []int `flag:"values"`
		}{}, want: "unsupported type"},
		{name: "bad default", params: &struct {
			Cost float64 `flag:"cost" default:"cheap"`
		}{}, want: "default for --cost"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			flagSet := FlagsFromParams("ok", &struct{}{})
			err := BindFlags(test.params, flagSet)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("BindFlags error = %v, want it to contain %q", err, test.want)
			}
		})
	}
}
