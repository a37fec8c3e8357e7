package console

import (
	"context"

	"github.com/mattn/go-tty"
)

// Keys reads single key presses from the controlling terminal until ctx is
// done. It fails if there is no terminal.
func Keys(ctx context.Context) (<-chan rune, error) {
	t, err := tty.Open()
	if err != nil {
		return nil, err
	}
	keys := make(chan rune)
	go func() {
		<-ctx.Done()
		t.Close()
	}()
	go func() {
		defer close(keys)
		for {
			r, err := t.ReadRune()
			if err != nil {
				return
			}
			select {
			case keys <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return keys, nil
}
