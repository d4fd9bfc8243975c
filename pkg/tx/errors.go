package tx

import "errors"

var errOutputOverflow = errors.New("tx: total output value overflows uint64")
