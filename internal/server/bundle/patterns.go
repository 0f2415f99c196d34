package bundle

// DefaultIgnorePatterns lists path segments and name globs excluded from
// both content groups. Matched against every segment of the file path.
var DefaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"vendor",
	"dist",
	"build",
	"__pycache__",
	".DS_Store",
	"*.log",
	"*.tmp",
	"*.swp",
}

// DefaultSecretPatterns lists name globs that classify a file as secret
// configuration. Matched against the file's base name only.
var DefaultSecretPatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"id_rsa",
	"id_ed25519",
	"credentials.json",
	"secrets.json",
	"secrets.yaml",
	"secrets.yml",
	"*.keystore",
	"*.p12",
}

// projectMarkers maps a marker file in the tree root to a project type label.
var projectMarkers = []struct {
	file  string
	label string
}{
	{"go.mod", "go"},
	{"package.json", "node"},
	{"pyproject.toml", "python"},
	{"requirements.txt", "python"},
	{"Cargo.toml", "rust"},
	{"pom.xml", "java"},
	{"build.gradle", "java"},
	{"Gemfile", "ruby"},
}
