package device

import "errors"

var errNoIDPath = errors.New("ID_PATH property not reported")
