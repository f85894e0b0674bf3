package app

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const currentDatabaseVersion = 1

// checkDatabaseVersion fails when the data directory holds a database of
// a different layout version. A missing version file means a new
// database, in which case it's created.
func checkDatabaseVersion(dataDir string) error {
	versionBytes, err := ioutil.ReadFile(versionFilePath(dataDir))
	if os.IsNotExist(err) {
		return createDatabaseVersionFile(dataDir)
	}
	if err != nil {
		return errors.WithStack(err)
	}

	databaseVersion, err := strconv.Atoi(strings.TrimSpace(string(versionBytes)))
	if err != nil {
		return errors.Wrapf(err, "corrupted database version file %s", versionFilePath(dataDir))
	}
	if databaseVersion != currentDatabaseVersion {
		return errors.Errorf("invalid database version %d, expected version %d",
			databaseVersion, currentDatabaseVersion)
	}
	return nil
}

func createDatabaseVersionFile(dataDir string) error {
	err := os.MkdirAll(dataDir, 0700)
	if err != nil {
		return errors.WithStack(err)
	}
	err = ioutil.WriteFile(versionFilePath(dataDir), []byte(strconv.Itoa(currentDatabaseVersion)), 0600)
	return errors.WithStack(err)
}

func versionFilePath(dataDir string) string {
	return filepath.Join(dataDir, "version")
}
