package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/launchkol/kolfeed/internal/config"
)

const (
	commandUse                  = "kolfeed-migrate"
	commandShortDescription     = "Convert exported feed settings to the current schema"
	flagInputName               = "in"
	flagInputDescription        = "Exported storage JSON file, or - for standard input"
	flagOutputName              = "out"
	flagOutputDescription       = "Migrated JSON output file, or - for standard output"
	flagImportName              = "import"
	flagImportDescription       = "Also write the migrated settings into the SQLite store"
	flagDatabasePathDescription = "SQLite database file used with --import"
	flagLogLevelDescription     = "Log level: debug, info, warn or error"
	envFileName                 = ".env"
	missingInputErrorMessage    = "--in is required"
	invalidExportErrorMessage   = "export is not valid JSON"
	readErrorFormat             = "read %s: %w"
	encodeErrorFormat           = "encode migrated settings: %w"
	createFileErrorFormat       = "create %s: %w"
	writeFileErrorFormat        = "write %s: %w"
	openStoreErrorFormat        = "open store %s: %w"
	importErrorFormat           = "import migrated settings: %w"
	importSuccessMessageFormat  = "Imported migrated settings into %s"
	summaryMessageFormat        = "Migrated %d groups, %d accounts, %d keywords"
	errMessageLoggerCreate      = "create logger"
)

var errMissingInput = errors.New(missingInputErrorMessage)

func main() {
	cobra.CheckErr(newMigrateCommand().Execute())
}

func newMigrateCommand() *cobra.Command {
	command := &cobra.Command{
		Use:          commandUse,
		Short:        commandShortDescription,
		SilenceUsage: true,
		RunE:         runMigrateCommand,
	}

	command.Flags().String(flagInputName, "", flagInputDescription)
	command.Flags().String(flagOutputName, "", flagOutputDescription)
	command.Flags().Bool(flagImportName, false, flagImportDescription)
	command.Flags().String(config.KeyDatabasePath, config.DefaultDatabasePath, flagDatabasePathDescription)
	command.Flags().String(config.KeyLogLevel, config.DefaultLogLevel, flagLogLevelDescription)

	for _, flagName := range []string{flagInputName, flagOutputName, flagImportName, config.KeyDatabasePath, config.KeyLogLevel} {
		cobra.CheckErr(viper.BindPFlag(flagName, command.Flags().Lookup(flagName)))
	}

	cobra.OnInitialize(configureEnvironment)

	return command
}

func configureEnvironment() {
	cobra.CheckErr(config.LoadEnvFiles(envFileName))
	config.ConfigureEnvironment(viper.GetViper())
}

func runMigrateCommand(command *cobra.Command, _ []string) error {
	inputPath := viper.GetString(flagInputName)
	if inputPath == "" {
		return errMissingInput
	}
	logger, err := config.NewLogger(viper.GetString(config.KeyLogLevel))
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoggerCreate, err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application := NewMigrateApplicationWithDependencies(MigrateDependencies{
		Logger: logger,
		Stdin:  command.InOrStdin(),
		Stdout: command.OutOrStdout(),
		Stderr: command.ErrOrStderr(),
	})
	return application.Run(command.Context(), MigrateConfiguration{
		InputPath:    inputPath,
		OutputPath:   viper.GetString(flagOutputName),
		DatabasePath: viper.GetString(config.KeyDatabasePath),
		Import:       viper.GetBool(flagImportName),
	})
}
