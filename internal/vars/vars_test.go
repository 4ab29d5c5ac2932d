package vars

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmforge/vmforge/internal/ir"
)

func writeVarFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vars.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolve_DefaultsApply(t *testing.T) {
	cfg := &ir.Config{Variables: []*ir.Variable{
		{Name: "location", Type: "string", Default: "eastus"},
		{Name: "vmCount", Type: "number", Default: 1},
	}}

	values, err := Resolve(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "eastus", values["location"])
	assert.Equal(t, 1, values["vmCount"])
}

func TestResolve_PrecedenceCLIOverFileOverDefault(t *testing.T) {
	cfg := &ir.Config{Variables: []*ir.Variable{
		{Name: "location", Type: "string", Default: "eastus"},
		{Name: "size", Type: "string", Default: "small"},
	}}
	file := writeVarFile(t, "location: westus\nsize: medium\n")

	values, err := Resolve(cfg, map[string]string{"location": "northeurope"}, []string{file})
	require.NoError(t, err)
	assert.Equal(t, "northeurope", values["location"], "CLI assignment wins over var-file")
	assert.Equal(t, "medium", values["size"], "var-file wins over default")
}

func TestResolve_LaterVarFileWins(t *testing.T) {
	cfg := &ir.Config{Variables: []*ir.Variable{
		{Name: "location", Type: "string"},
	}}
	first := writeVarFile(t, "location: westus\n")
	second := writeVarFile(t, "location: japaneast\n")

	values, err := Resolve(cfg, nil, []string{first, second})
	require.NoError(t, err)
	assert.Equal(t, "japaneast", values["location"])
}

func TestResolve_MissingRequiredVariable(t *testing.T) {
	cfg := &ir.Config{Variables: []*ir.Variable{
		{Name: "adminPassword", Type: "string"},
	}}

	_, err := Resolve(cfg, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adminPassword")
}

func TestResolve_CoercesCLIStrings(t *testing.T) {
	cfg := &ir.Config{Variables: []*ir.Variable{
		{Name: "vmCount", Type: "number"},
		{Name: "enabled", Type: "bool"},
		{Name: "zones", Type: "list"},
	}}

	values, err := Resolve(cfg, map[string]string{
		"vmCount": "3",
		"enabled": "true",
		"zones":   "1, 2, 3",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, values["vmCount"])
	assert.Equal(t, true, values["enabled"])
	assert.Equal(t, []any{"1", "2", "3"}, values["zones"])
}

func TestResolve_BadNumberFails(t *testing.T) {
	cfg := &ir.Config{Variables: []*ir.Variable{
		{Name: "vmCount", Type: "number"},
	}}

	_, err := Resolve(cfg, map[string]string{"vmCount": "plenty"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a number")
}

func TestResolve_ValidationRuleRejectsValue(t *testing.T) {
	cfg := &ir.Config{Variables: []*ir.Variable{
		{Name: "location", Type: "string", Default: "mars", Validation: "oneof=eastus westus"},
	}}

	_, err := Resolve(cfg, nil, nil)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "location", verr.Variable)
	assert.Equal(t, "mars", verr.Value)
	assert.Equal(t, "oneof=eastus westus", verr.Rule)
}

func TestResolve_ValidationRuleAcceptsValue(t *testing.T) {
	cfg := &ir.Config{Variables: []*ir.Variable{
		{Name: "vmCount", Type: "number", Default: 3, Validation: "min=1,max=10"},
	}}

	values, err := Resolve(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, values["vmCount"])
}

func TestInterpolate_ExactTokenKeepsType(t *testing.T) {
	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "azure:Compute.VM", Name: "vm", Attributes: map[string]any{
			"count":   "${var.vmCount}",
			"address": "10.0.${var.octet}.0/24",
		}},
	}}

	err := Interpolate(cfg, map[string]any{"vmCount": 3, "octet": 1})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Resources[0].Attributes["count"])
	assert.Equal(t, "10.0.1.0/24", cfg.Resources[0].Attributes["address"])
}

func TestInterpolate_NestedStructures(t *testing.T) {
	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "azure:Network.Vnet", Name: "main", Attributes: map[string]any{
			"tags":          map[string]any{"env": "${var.env}"},
			"addressSpaces": []any{"${var.cidr}"},
		}},
	}}

	err := Interpolate(cfg, map[string]any{"env": "prod", "cidr": "10.0.0.0/16"})
	require.NoError(t, err)
	attrs := cfg.Resources[0].Attributes
	assert.Equal(t, "prod", attrs["tags"].(map[string]any)["env"])
	assert.Equal(t, "10.0.0.0/16", attrs["addressSpaces"].([]any)[0])
}

func TestInterpolate_CountVarSetsCount(t *testing.T) {
	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "azure:Compute.VM", Name: "vm", CountVar: "vmCount"},
	}}

	err := Interpolate(cfg, map[string]any{"vmCount": 3})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Resources[0].Count)
}

func TestInterpolate_UnknownVariableFails(t *testing.T) {
	cfg := &ir.Config{Resources: []*ir.Resource{
		{Type: "azure:Compute.VM", Name: "vm", Attributes: map[string]any{
			"size": "${var.missing}",
		}},
	}}

	err := Interpolate(cfg, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestInterpolate_Outputs(t *testing.T) {
	cfg := &ir.Config{Outputs: map[string]*ir.Output{
		"region": {Value: "${var.location}"},
	}}

	err := Interpolate(cfg, map[string]any{"location": "eastus"})
	require.NoError(t, err)
	assert.Equal(t, "eastus", cfg.Outputs["region"].Value)
}
