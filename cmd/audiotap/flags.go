package main

import (
	"github.com/spf13/pflag"
)

func (c *cli) bind(flag *pflag.Flag, key string) {
	if err := c.v.BindPFlag(key, flag); err != nil {
		panic(err) // only fails for a nil flag
	}
}
