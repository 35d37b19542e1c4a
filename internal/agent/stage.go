package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/harun/monet/pkg/supervisor"
	"github.com/harun/monet/pkg/task"
)

// stagedFiles are the task inputs written to the renderer working directory
type stagedFiles struct {
	style             string
	styleSemanticMap  string
	targetSemanticMap string
}

func (s stagedFiles) inputs() supervisor.Inputs {
	return supervisor.Inputs{
		StyleFile:         s.style,
		TargetSemanticMap: s.targetSemanticMap,
	}
}

func (s stagedFiles) paths() []string {
	return []string{s.style, s.styleSemanticMap, s.targetSemanticMap}
}

// remove deletes the staged inputs and the rendered output, which the
// supervisor has already stored by the time the run returns
func (s stagedFiles) remove(logger zerolog.Logger) {
	for _, path := range append(s.paths(), s.inputs().OutputFile()) {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("file", path).Msg("Failed to remove run file")
		}
	}
}

// stage writes the three inputs under fresh names. The style semantic map
// shares the style file name with a _sem suffix, which is how the renderer
// finds it.
func (a *Agent) stage(t *task.Task) (stagedFiles, error) {
	dir := a.config.Programs.NeuralDoodle.WorkingDirectory
	styleName := a.newFileName()

	staged := stagedFiles{
		style:             filepath.Join(dir, styleName+".png"),
		styleSemanticMap:  filepath.Join(dir, styleName+"_sem.png"),
		targetSemanticMap: filepath.Join(dir, a.newFileName()+"_sem.png"),
	}

	for i, path := range staged.paths() {
		if err := os.WriteFile(path, t.Inputs[i], 0o644); err != nil {
			staged.remove(a.log)
			return stagedFiles{}, fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return staged, nil
}
