package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/harun/monet/pkg/task"
)

// Phases is the number of refinement phases passed to the renderer
const Phases = 3

const (
	imageExtension     = ".png"
	semanticMapSuffix  = "_sem" + imageExtension
	framesDirectoryDir = "frames"
)

// Program describes how to invoke the renderer
type Program struct {
	Command          string
	Script           string
	Arguments        []string
	WorkingDirectory string
}

// Inputs are the staged files a run reads
type Inputs struct {
	// StyleFile is the base style image. Its semantic map sits next to it
	// with the _sem suffix, where the renderer looks for it.
	StyleFile string

	// TargetSemanticMap is the semantic map of the image to produce
	TargetSemanticMap string
}

// OutputFile returns the path the renderer writes the final image to
func (in Inputs) OutputFile() string {
	dir := filepath.Dir(in.TargetSemanticMap)
	base := strings.TrimSuffix(filepath.Base(in.TargetSemanticMap), semanticMapSuffix)
	return filepath.Join(dir, base+imageExtension)
}

// FramesDirectory returns the directory the renderer saves frames into
func (p Program) FramesDirectory() string {
	return filepath.Join(p.WorkingDirectory, framesDirectoryDir)
}

// arguments returns the full renderer argument list for a task
func (p Program) arguments(t *task.Task, in Inputs) []string {
	args := make([]string, 0, 1+len(p.Arguments)+len(t.Arguments)+3)
	if p.Script != "" {
		args = append(args, p.Script)
	}
	args = append(args, p.Arguments...)
	args = append(args, t.Arguments...)
	args = append(args,
		fmt.Sprintf("--phases=%d", Phases),
		"--style="+in.StyleFile,
		"--output="+in.OutputFile(),
	)
	return args
}

// Cmd builds the renderer command for a task. Standard streams are
// inherited and the process is not tied to any context.
func (p Program) Cmd(t *task.Task, in Inputs) *exec.Cmd {
	cmd := exec.Command(p.Command, p.arguments(t, in)...)
	cmd.Dir = p.WorkingDirectory
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// ExpectedFrames returns the number of frames a run of t should write
func (p Program) ExpectedFrames(t *task.Task) float64 {
	args := make([]string, 0, len(p.Arguments)+len(t.Arguments))
	args = append(args, p.Arguments...)
	args = append(args, t.Arguments...)
	return task.ExpectedFrames(args, Phases)
}
