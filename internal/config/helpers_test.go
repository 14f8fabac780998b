package config

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/dataq/internal/pipeline"
)

func cmpSettings(want, got pipeline.Settings) string {
	return cmp.Diff(want, got, cmpopts.EquateEmpty())
}
