package config

import (
	"fmt"
	"os"
	"path"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// ReadYAML looks for the file in the working directory first, then in SITE_DATA_DIR.
// Returns path of the file read and messages to log when logging is configured
func ReadYAML(configFilename string, outMsg []string, outStruct interface{}) ([]string, string, error) {
	var configFilePath string
	wd, _ := os.Getwd()
	outMsg = append(outMsg, fmt.Sprintf("Current working directory is %v", wd))

	siteDataDir := os.Getenv("SITE_DATA_DIR")

	if _, err := os.Stat(configFilename); err == nil {
		configFilePath = configFilename
	} else {
		if siteDataDir == "" {
			return outMsg, "", errors.Errorf("can't find config file %v", configFilename)
		}
		outMsg = append(outMsg, fmt.Sprintf("SITE_DATA_DIR is %v", siteDataDir))
		configFilePath = path.Join(siteDataDir, configFilename)
	}

	outMsg = append(outMsg, fmt.Sprintf("reading config values from %v", configFilePath))

	yamlbytes, err := os.ReadFile(configFilePath)
	if err != nil {
		return outMsg, "", errors.Wrap(err, "reading config file")
	}
	if err = yaml.Unmarshal(yamlbytes, outStruct); err != nil {
		return outMsg, "", errors.Wrapf(err, "parsing config file %v", configFilePath)
	}
	return outMsg, configFilePath, nil
}
