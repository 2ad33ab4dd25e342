// Copyright 2023 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package vuln implements the Vulnerability Adapter and its supporting
value types: severities, CVE items, vulnerability lists and thresholds.
*/
package vuln

import "time"

// Severity classifies a CveItem.
type Severity int

const (
	Unknown Severity = iota
	None
	Low
	Medium
	High
	Critical
)

func (s Severity) String() string {
	switch s {
	case None:
		return "NONE"
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// SeverityFromCVSS derives a Severity from a CVSS base score using the
// bands: >=9 CRITICAL, >=7 HIGH, >=4 MEDIUM, >=0.1 LOW, else NONE.
func SeverityFromCVSS(score float64) Severity {
	switch {
	case score >= 9:
		return Critical
	case score >= 7:
		return High
	case score >= 4:
		return Medium
	case score >= 0.1:
		return Low
	default:
		return None
	}
}

// CveItem is one vulnerability record. AffectedRange, when non-empty, is a
// version-package range expression scoping the record to the versions it
// actually affects (the keyword search of spec.md §4.3 is package-wide, not
// per-version, so the adapter narrows the result client-side); an empty
// AffectedRange affects every version.
type CveItem struct {
	ID            string
	Description   string
	Severity      Severity
	CVSS          *float64
	Published     *time.Time
	Modified      *time.Time
	References    []string
	AffectedRange string
}

// VulnerabilityList is an ordered sequence of CveItems with derived
// per-severity counts.
type VulnerabilityList struct {
	Items []CveItem
}

// Counts returns the number of items per severity bucket.
func (l VulnerabilityList) Counts() SeverityCounts {
	var c SeverityCounts
	for _, it := range l.Items {
		switch it.Severity {
		case Critical:
			c.Critical++
		case High:
			c.High++
		case Medium:
			c.Medium++
		case Low:
			c.Low++
		}
	}
	return c
}

// SeverityCounts tallies items per severity bucket relevant to
// Threshold.Passes; NONE and UNKNOWN are not bounded by any threshold.
type SeverityCounts struct {
	Critical, High, Medium, Low int
}
