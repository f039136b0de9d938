package repository

import "errors"

// ErrNotFound 目录查询未命中
var ErrNotFound = errors.New("record not found")
