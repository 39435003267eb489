// Package buildinfo carries the version stamped in at link time:
//
//	go build -ldflags "-X dispatchmap/internal/buildinfo.Version=v1.2.0"
package buildinfo

import "runtime/debug"

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    info := map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
        "go":      "",
    }
    if bi, ok := debug.ReadBuildInfo(); ok {
        info["go"] = bi.GoVersion
        if Commit == "" {
            for _, s := range bi.Settings {
                if s.Key == "vcs.revision" { info["commit"] = s.Value }
            }
        }
    }
    return info
}
