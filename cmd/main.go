package main

import (
	"github.com/shopstack/checkout/internal/app"
	"github.com/shopstack/checkout/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
