package notify

import (
	"context"
	"fmt"
	"os/exec"
)

// Sound plays a file per notice kind with an external player such as
// paplay or aplay. Kinds without a file are silent.
type Sound struct {
	player string
	files  map[Kind]string
}

func NewSound(player string, files map[Kind]string) *Sound {
	return &Sound{player: player, files: files}
}

func (s *Sound) Name() string { return "sound" }

func (s *Sound) Send(ctx context.Context, n Notice) error {
	file, ok := s.files[n.Kind]
	if !ok || file == "" || s.player == "" {
		return nil
	}
	out, err := exec.CommandContext(ctx, s.player, file).CombinedOutput()
	if err != nil {
		return fmt.Errorf("play %s with %s: %w (%s)", file, s.player, err, out)
	}
	return nil
}
