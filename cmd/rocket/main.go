package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/BillArmsty/rusty-rocket/pkg/app"
)

func main() {
	if err := app.Run(&rocket{}); err != nil {
		logrus.StandardLogger().WithError(err).Error("error running rocket")
		os.Exit(1)
	}
}
