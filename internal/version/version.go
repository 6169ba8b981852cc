package version

// Set at build time via -ldflags.
var (
	Version   = "dev"
	Built     = ""
	GitCommit = ""
)

type Info struct {
	Version   string `json:"version"`
	Built     string `json:"built,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Built:     Built,
		GitCommit: GitCommit,
	}
}
