package buildinfo

import "runtime/debug"

// Set through -ldflags "-X dronenav/internal/buildinfo.Version=..."
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    out := map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
    }
    if bi, ok := debug.ReadBuildInfo(); ok {
        out["go"] = bi.GoVersion
        if Commit == "" {
            for _, s := range bi.Settings {
                if s.Key == "vcs.revision" { out["commit"] = s.Value }
            }
        }
    }
    return out
}

// String is the one-line form printed by the CLIs.
func String() string {
    i := Info()
    s := "dronenav " + i["version"]
    if i["commit"] != "" { s += " (" + i["commit"] + ")" }
    return s
}
