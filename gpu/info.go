package gpu

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// DeviceInfo describes the device and the limits the engine cares about
type DeviceInfo struct {
	Vendor          string
	Renderer        string
	Version         string
	ShadingLanguage string

	MaxUniformBlockSize      int32
	MaxVertexUniformBlocks   int32
	MaxFragmentUniformBlocks int32
	MaxStorageBlockSize      int32
	MaxComputeWorkGroupCount [3]int32
	MaxComputeWorkGroupSize  [3]int32
	MaxComputeInvocations    int32
}

// WriteTable prints the device description as a two column table
func (i DeviceInfo) WriteTable(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	rows := [][]string{
		{"GL_VENDOR", i.Vendor},
		{"GL_RENDERER", i.Renderer},
		{"GL_VERSION", i.Version},
		{"GL_SHADING_LANGUAGE_VERSION", i.ShadingLanguage},
		{"GL_MAX_UNIFORM_BLOCK_SIZE", fmt.Sprintf("%d", i.MaxUniformBlockSize)},
		{"GL_MAX_VERTEX_UNIFORM_BLOCKS", fmt.Sprintf("%d", i.MaxVertexUniformBlocks)},
		{"GL_MAX_FRAGMENT_UNIFORM_BLOCKS", fmt.Sprintf("%d", i.MaxFragmentUniformBlocks)},
		{"max mat4 per uniform block", fmt.Sprintf("%d", i.MaxUniformMatrices())},
		{"GL_MAX_SHADER_STORAGE_BLOCK_SIZE", fmt.Sprintf("%d", i.MaxStorageBlockSize)},
		{"GL_MAX_COMPUTE_WORK_GROUP_COUNT", formatTriple(i.MaxComputeWorkGroupCount)},
		{"GL_MAX_COMPUTE_WORK_GROUP_SIZE", formatTriple(i.MaxComputeWorkGroupSize)},
		{"GL_MAX_COMPUTE_WORK_GROUP_INVOCATIONS", fmt.Sprintf("%d", i.MaxComputeInvocations)},
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// MaxUniformMatrices is how many mat4 values fit in one uniform block
func (i DeviceInfo) MaxUniformMatrices() int32 {
	return i.MaxUniformBlockSize / 4 / 16
}

func formatTriple(v [3]int32) string {
	return fmt.Sprintf("%d x %d x %d", v[0], v[1], v[2])
}
