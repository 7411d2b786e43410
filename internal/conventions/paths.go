package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default lendr data directory name (relative to home).
	DefaultDataDir = ".lendr"
	// DBFile is the SQLite database filename.
	DBFile = "lendr.db"
	// BooksDir is the subdirectory for downloaded book content.
	BooksDir = "books"
	// ProvidersFile is the optional user provided account providers file.
	ProvidersFile = "providers.yaml"
	// EnvFile is the optional dotenv file loaded on startup.
	EnvFile = ".env"

	// EnvPrefix is the prefix of every environment variable read by lendr.
	EnvPrefix = "LENDR"

	// DefaultRegistryURI is the default remote account provider registry.
	DefaultRegistryURI = "https://libraryregistry.librarysimplified.org/libraries"
	// DefaultAPIAddress is the default listen address of the HTTP API.
	DefaultAPIAddress = "127.0.0.1:8087"
)

// DBPath returns the path of the database inside the data dir.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// BooksPath returns the book content directory inside the data dir.
func BooksPath(dataDir string) string {
	return filepath.Join(dataDir, BooksDir)
}

// ProvidersPath returns the user providers file inside the data dir.
func ProvidersPath(dataDir string) string {
	return filepath.Join(dataDir, ProvidersFile)
}
