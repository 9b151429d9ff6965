package rocscan

import (
	"encoding/json"
	"fmt"
	"io"
)

// Report is the outcome of scanning one file.
type Report struct {
	File      string `json:"file"`
	IDs       []int  `json:"ids"`
	Events    int    `json:"events"`
	Converged bool   `json:"converged"`
	Limited   bool   `json:"limited"`
	Err       string `json:"error,omitempty"`
}

// NewReport builds the report of a scan that ended with the state and error.
func NewReport(file string, state State, err error) Report {
	r := Report{
		File:      file,
		IDs:       state.IDs.Sorted(),
		Events:    state.Events,
		Converged: state.Converged,
		Limited:   state.Limited,
	}

	if err != nil {
		r.Err = err.Error()
	}

	return r
}

// WriteText writes the report in the human readable form.
func (r Report) WriteText(w io.Writer) error {
	if r.Err != "" {
		if _, err := fmt.Fprintf(w, "Scan of %s failed: %s\n", r.File, r.Err); err != nil {
			return err
		}
	} else {
		status := "end of file"
		switch {
		case r.Converged:
			status = "converged"
		case r.Limited:
			status = "event limit"
		}

		if _, err := fmt.Fprintf(w, "Scanned %d events of %s (%s)\n",
			r.Events, r.File, status); err != nil {
			return err
		}
	}

	if len(r.IDs) == 0 {
		_, err := fmt.Fprintln(w, "Source ids: none found")
		return err
	}

	_, err := fmt.Fprintf(w, "Source ids: %s\n", NewIDSet(r.IDs...))

	return err
}

// WriteJSON writes the report as one JSON object.
func (r Report) WriteJSON(w io.Writer) error {
	if r.IDs == nil {
		r.IDs = []int{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(r)
}
