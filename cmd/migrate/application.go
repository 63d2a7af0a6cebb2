package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/launchkol/kolfeed/internal/feedsettings"
	"github.com/launchkol/kolfeed/internal/kvstore"
	"github.com/launchkol/kolfeed/internal/migration"
	"github.com/launchkol/kolfeed/internal/persistence"
)

const (
	standardStreamPath = "-"
	importContextName  = "migrate"
	outputIndent       = "  "
)

var errInvalidExport = errors.New(invalidExportErrorMessage)

// MigrateConfiguration describes one migration run.
type MigrateConfiguration struct {
	InputPath    string
	OutputPath   string
	DatabasePath string
	Import       bool
}

// MigrateDependencies holds the collaborators of a migration run so tests can replace them.
type MigrateDependencies struct {
	ReadInputFile   func(string) ([]byte, error)
	WriteOutputFile func(string, []byte) error
	OpenStore       func(context.Context, string) (kvstore.Store, func(), error)
	Logger          *zap.Logger
	Stdin           io.Reader
	Stdout          io.Writer
	Stderr          io.Writer
}

// MigrateApplication converts an exported storage document into the current schema.
type MigrateApplication struct {
	dependencies MigrateDependencies
}

// NewMigrateApplication wires the default file system and SQLite collaborators.
func NewMigrateApplication(logger *zap.Logger) MigrateApplication {
	return NewMigrateApplicationWithDependencies(MigrateDependencies{Logger: logger})
}

// NewMigrateApplicationWithDependencies fills every missing dependency with its default.
func NewMigrateApplicationWithDependencies(dependencies MigrateDependencies) MigrateApplication {
	defaultDependencies := newDefaultMigrateDependencies()

	if dependencies.ReadInputFile == nil {
		dependencies.ReadInputFile = defaultDependencies.ReadInputFile
	}
	if dependencies.WriteOutputFile == nil {
		dependencies.WriteOutputFile = defaultDependencies.WriteOutputFile
	}
	if dependencies.Logger == nil {
		dependencies.Logger = defaultDependencies.Logger
	}
	if dependencies.OpenStore == nil {
		logger := dependencies.Logger
		dependencies.OpenStore = func(ctx context.Context, databasePath string) (kvstore.Store, func(), error) {
			return openSQLiteStore(ctx, databasePath, logger)
		}
	}
	if dependencies.Stdin == nil {
		dependencies.Stdin = defaultDependencies.Stdin
	}
	if dependencies.Stdout == nil {
		dependencies.Stdout = defaultDependencies.Stdout
	}
	if dependencies.Stderr == nil {
		dependencies.Stderr = defaultDependencies.Stderr
	}

	return MigrateApplication{dependencies: dependencies}
}

// Run reads the export, migrates it, writes the result and optionally imports it into storage.
func (application MigrateApplication) Run(executionContext context.Context, configuration MigrateConfiguration) error {
	exported, readError := application.readInput(configuration.InputPath)
	if readError != nil {
		return fmt.Errorf(readErrorFormat, configuration.InputPath, readError)
	}
	if !gjson.ValidBytes(exported) {
		return fmt.Errorf(readErrorFormat, configuration.InputPath, errInvalidExport)
	}

	state := migration.Document(gjson.ParseBytes(exported))

	encoded, encodeError := json.MarshalIndent(state, "", outputIndent)
	if encodeError != nil {
		return fmt.Errorf(encodeErrorFormat, encodeError)
	}
	encoded = append(encoded, '\n')
	if writeError := application.writeOutput(configuration.OutputPath, encoded); writeError != nil {
		return writeError
	}

	if configuration.Import {
		if importError := application.importState(executionContext, configuration.DatabasePath, state); importError != nil {
			return importError
		}
		fmt.Fprintf(application.dependencies.Stderr, importSuccessMessageFormat+"\n", configuration.DatabasePath)
	}

	groups, accounts, keywords := summarize(state)
	fmt.Fprintf(application.dependencies.Stderr, summaryMessageFormat+"\n", groups, accounts, keywords)
	return nil
}

func (application MigrateApplication) readInput(inputPath string) ([]byte, error) {
	if inputPath == standardStreamPath {
		return io.ReadAll(application.dependencies.Stdin)
	}
	return application.dependencies.ReadInputFile(inputPath)
}

func (application MigrateApplication) writeOutput(outputPath string, contents []byte) error {
	if outputPath == "" || outputPath == standardStreamPath {
		if _, writeError := application.dependencies.Stdout.Write(contents); writeError != nil {
			return fmt.Errorf(writeFileErrorFormat, standardStreamPath, writeError)
		}
		return nil
	}
	return application.dependencies.WriteOutputFile(outputPath, contents)
}

func (application MigrateApplication) importState(executionContext context.Context, databasePath string, state feedsettings.State) error {
	store, closeStore, openError := application.dependencies.OpenStore(executionContext, databasePath)
	if openError != nil {
		return fmt.Errorf(openStoreErrorFormat, databasePath, openError)
	}
	defer closeStore()

	adapter := persistence.NewAdapter(store, application.dependencies.Logger)
	defer adapter.Close()

	if saveError := adapter.SaveGroups(executionContext, state.Groups); saveError != nil {
		return fmt.Errorf(importErrorFormat, saveError)
	}
	if saveError := adapter.SaveGlobalSettings(executionContext, state.GlobalSettings); saveError != nil {
		return fmt.Errorf(importErrorFormat, saveError)
	}
	if saveError := adapter.SaveRecentColors(executionContext, state.RecentColors); saveError != nil {
		return fmt.Errorf(importErrorFormat, saveError)
	}
	return nil
}

// summarize counts the groups, accounts and keywords of a migrated state.
func summarize(state feedsettings.State) (int, int, int) {
	accounts := 0
	keywords := countKeywords(state.GlobalSettings.Filters)
	for _, group := range state.Groups {
		accounts += len(group.Accounts)
		keywords += countKeywords(group.Settings.Filters)
		for _, account := range group.Accounts {
			if account.Settings != nil {
				keywords += countKeywords(account.Settings.Filters)
			}
		}
	}
	return len(state.Groups), accounts, keywords
}

func countKeywords(filters *feedsettings.ContentFilters) int {
	if filters == nil {
		return 0
	}
	return len(filters.Keywords)
}

func newDefaultMigrateDependencies() MigrateDependencies {
	return MigrateDependencies{
		ReadInputFile:   os.ReadFile,
		WriteOutputFile: defaultWriteOutputFile,
		Logger:          zap.NewNop(),
		Stdin:           os.Stdin,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
	}
}

func openSQLiteStore(ctx context.Context, databasePath string, logger *zap.Logger) (kvstore.Store, func(), error) {
	store, openError := kvstore.OpenSQLite(ctx, kvstore.SQLiteConfig{Path: databasePath, ContextName: importContextName}, logger)
	if openError != nil {
		return nil, nil, openError
	}
	return store, func() { _ = store.Close() }, nil
}

func defaultWriteOutputFile(outputPath string, contents []byte) error {
	file, createError := os.Create(outputPath)
	if createError != nil {
		return fmt.Errorf(createFileErrorFormat, outputPath, createError)
	}
	defer file.Close()

	if _, writeError := file.Write(contents); writeError != nil {
		return fmt.Errorf(writeFileErrorFormat, outputPath, writeError)
	}
	return nil
}
