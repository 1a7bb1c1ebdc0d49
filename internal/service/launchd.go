// Package service provides launchd plist generation for macOS.
package service

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// DefaultLabel identifies the lectern agent.
const DefaultLabel = "com.lectern.agent"

const launchdTemplate = `<?xml version='1.0' encoding='UTF-8'?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key><string>{{.Label | xml}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{.Binary | xml}}</string>
    <string>serve</string>
    <string>--config</string>
    <string>{{.Config | xml}}</string>
  </array>
  <key>RunAtLoad</key><false/>
  <key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>
  <key>ExitTimeOut</key><integer>900</integer>
  <key>StandardOutPath</key><string>{{.Log | xml}}</string>
  <key>StandardErrorPath</key><string>{{.Log | xml}}</string>
  {{- if .Env }}
  <key>EnvironmentVariables</key>
  <dict>
    {{- range $k, $v := .Env }}
    <key>{{xml $k}}</key><string>{{xml $v}}</string>
    {{- end }}
  </dict>
  {{- end }}
</dict>
</plist>
`

var plistTemplate = template.Must(template.New("launchd").Funcs(template.FuncMap{"xml": escapeXML}).Parse(launchdTemplate))

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// LaunchdParams fills the agent plist.
type LaunchdParams struct {
	Label  string
	Binary string
	Config string
	Log    string
	Env    map[string]string
}

func agentsDir() string {
	return filepath.Join(os.Getenv("HOME"), "Library", "LaunchAgents")
}

// LaunchdPath returns the plist path for a label.
func LaunchdPath(label string) string {
	return filepath.Join(agentsDir(), fmt.Sprintf("%s.plist", label))
}

// Render writes the plist for params.
func Render(w io.Writer, params LaunchdParams) error {
	return plistTemplate.Execute(w, params)
}

// WritePlist writes a user-level launchd plist.
func WritePlist(params LaunchdParams) (string, error) {
	if err := os.MkdirAll(agentsDir(), 0o755); err != nil {
		return "", err
	}
	path := LaunchdPath(params.Label)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := Render(f, params); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}
