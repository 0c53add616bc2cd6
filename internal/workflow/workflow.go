// Package workflow renders the node-graph job descriptions submitted to
// render worker nodes. Rendering is pure string substitution into fixed
// graph templates; there is no control flow in a template.
package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FileKind names the worker-side directory a remote file lives in.
type FileKind string

const (
	KindInput  FileKind = "input"
	KindOutput FileKind = "output"
)

// escape makes a user-supplied value safe to splice into a JSON template.
// Marshal wraps the value in exactly one quote per side; slice them off
// rather than trimming, which would also eat an escaped quote at the end
// of the value itself.
func escape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}

func render(tmpl string, vars map[string]string) (json.RawMessage, error) {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "$"+k, escape(v))
	}
	out := strings.NewReplacer(pairs...).Replace(tmpl)

	var check map[string]any
	if err := json.Unmarshal([]byte(out), &check); err != nil {
		return nil, fmt.Errorf("rendered job description is not valid JSON: %w", err)
	}
	return json.RawMessage(out), nil
}

// Text2Img builds a text-to-image job description.
func Text2Img(text string) (json.RawMessage, error) {
	return render(text2imgTemplate, map[string]string{"text": text})
}

// Img2Img builds an image-to-image job description referencing a previously
// uploaded input artifact by its worker-side path.
func Img2Img(text, imagePath string) (json.RawMessage, error) {
	return render(img2imgTemplate, map[string]string{"text": text, "image": imagePath})
}

// CleanFile builds the maintenance job description that deletes a temporary
// input or output file on the worker node.
func CleanFile(kind FileKind, path string) (json.RawMessage, error) {
	return render(cleanFileTemplate, map[string]string{"type": string(kind), "path": path})
}
