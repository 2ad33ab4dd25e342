// Package internal provides helpers for walking with the PyPI and for
// defining a canonical Python/pip platform.
package internal

import (
	"deps.dev/util/pypi"
)

type PEP425Tag pypi.PEP425Tag
