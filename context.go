package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

type Context struct {
	R *http.Request
}

func (c *Context) MergeFromRequest(r *http.Request) error {
	c.R = r
	return r.ParseForm()
}

// PathID reads a positive id from the route variable name.
func (c *Context) PathID(name string) (int, error) {
	id, err := strconv.Atoi(mux.Vars(c.R)[name])
	if err != nil || id <= 0 {
		return 0, NewNotFoundError(fmt.Errorf("invalid %v: %q", name, mux.Vars(c.R)[name]))
	}
	return id, nil
}

// FormInt reads an integer form value, def when it is absent.
func (c *Context) FormInt(name string, def int) (int, error) {
	v := c.R.FormValue(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, NewBadRequestError(fmt.Errorf("invalid %v: %q", name, v))
	}
	return n, nil
}
