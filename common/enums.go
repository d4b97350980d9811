// Package common keeps small enumerations shared between configuration,
// command line and processing packages, so none of them has to import the
// others just to name a value.
package common

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Serialization format of a timeline source.
// Values are csv, txt, pbf and xml, the last one is read only.
type TimelineFmt int

const (
	TimelineFmtCsv TimelineFmt = iota
	TimelineFmtTxt
	TimelineFmtPbf
	TimelineFmtXml
)

var timelineFmtNames = [...]string{"csv", "txt", "pbf", "xml"}

func (f TimelineFmt) String() string {
	if f < 0 || int(f) >= len(timelineFmtNames) {
		return fmt.Sprintf("TimelineFmt(%d)", int(f))
	}
	return timelineFmtNames[f]
}

// Writable reports whether timelines could be saved in this format.
func (f TimelineFmt) Writable() bool {
	return f != TimelineFmtXml
}

// TimelineFmtNames returns list of possible string values of TimelineFmt.
func TimelineFmtNames() []string {
	return append([]string(nil), timelineFmtNames[:]...)
}

// ParseTimelineFmt attempts to convert a string to a TimelineFmt.
func ParseTimelineFmt(name string) (TimelineFmt, error) {
	for i, n := range timelineFmtNames {
		if strings.EqualFold(n, name) {
			return TimelineFmt(i), nil
		}
	}
	return TimelineFmt(0), fmt.Errorf("%s is not a valid TimelineFmt, try [%s]", name, strings.Join(timelineFmtNames[:], ", "))
}

// TimelineFmtFromPath guesses format from file extension.
func TimelineFmtFromPath(path string) (TimelineFmt, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if len(ext) == 0 {
		return TimelineFmt(0), fmt.Errorf("unable to guess timeline format, no extension in %q", path)
	}
	return ParseTimelineFmt(ext)
}
