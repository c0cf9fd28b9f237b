package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/integrii/flaggy"
	"github.com/jesseduffield/nsi/pkg/builder"
	"github.com/sirupsen/logrus"
)

type buildArgs struct {
	yamlPath string
}

func newBuildSubcommand() (*flaggy.Subcommand, *buildArgs) {
	args := &buildArgs{yamlPath: "nsi.yml"}
	cmd := flaggy.NewSubcommand("build")
	cmd.Description = "build an image from a YAML build configuration"
	cmd.AddPositionalValue(&args.yamlPath, "config", 1, false, "path to the build YAML (default nsi.yml)")
	return cmd, args
}

func runBuild(logger *logrus.Entry, args *buildArgs) error {
	imgPath, err := builder.Build(logger, args.yamlPath)
	if err != nil {
		return err
	}
	fmt.Println(color.GreenString(imgPath))
	return nil
}
