package train

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ErrDeclined is returned when the user refuses to overwrite a saved run.
var ErrDeclined = errors.New("not saving any results (model, params, or metrics)")

const overwritePrompt = "***WARNING*** you ran the saved model on a different dataset than it was previously trained on. Overwrite? (y/n) > "

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(question string) (bool, error)
}

// StdinPrompter reads the answer from In. Any answer containing "y" is a yes.
type StdinPrompter struct {
	In  io.Reader
	Out io.Writer
}

func (p StdinPrompter) Confirm(question string) (bool, error) {
	fmt.Fprint(p.Out, question)
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.Wrap(err, "error reading answer")
	}
	return strings.Contains(line, "y"), nil
}
