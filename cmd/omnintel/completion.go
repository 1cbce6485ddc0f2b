// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/omninode/omnintel/internal/errors"
)

const bashCompletionTemplate = `#!/bin/bash

# Bash completion script for omnintel
# Installation:
#   source <(omnintel completion bash)
#   Or add to ~/.bashrc:
#   echo 'source <(omnintel completion bash)' >> ~/.bashrc

_omnintel_completion() {
    local cur prev commands
    commands="serve backfill tree status completion"

    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    # Global flags
    if [[ ${cur} == -* ]] ; then
        COMPREPLY=( $(compgen -W "--version --config --json --quiet --no-color" -- ${cur}) )
        return 0
    fi

    # First argument: complete commands
    if [ $COMP_CWORD -eq 1 ]; then
        COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
        return 0
    fi

    local cmd="${COMP_WORDS[1]}"
    case "${cmd}" in
        serve)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--listen" -- ${cur}) )
            fi
            ;;
        backfill)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--project-name --dry-run --max-files --batch-size --verbose" -- ${cur}) )
            fi
            ;;
        tree)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--project-name --max-depth --deps" -- ${cur}) )
            fi
            ;;
        status)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--json" -- ${cur}) )
            fi
            ;;
        completion)
            if [ $COMP_CWORD -eq 2 ]; then
                COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            fi
            ;;
    esac
}

complete -F _omnintel_completion omnintel
`

const zshCompletionTemplate = `#compdef omnintel

# Zsh completion script for omnintel
# Installation:
#   1. Ensure compinit is loaded (add to ~/.zshrc if not present):
#      autoload -U compinit; compinit
#   2. Save this script to a directory in your fpath:
#      omnintel completion zsh > "${fpath[1]}/_omnintel"
#   3. Reload completions:
#      rm -f ~/.zcompdump; compinit

_omnintel() {
    local -a commands
    commands=(
        'serve:Run the event consumer and ops listener'
        'backfill:Walk a repository and index it in-process'
        'tree:Show the indexed repository tree'
        'status:Show store connectivity and counts'
        'completion:Generate shell completion script'
    )

    _arguments -C \
        '(- *)--version[Show version and exit]' \
        '--config[Path to omnintel.yaml]:config file:_files -g "*.yaml"' \
        '--json[Output as JSON where supported]' \
        '--quiet[Suppress progress output]' \
        '--no-color[Disable colored output]' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                serve)
                    _arguments \
                        '--listen[Ops listener address]:address:'
                    ;;
                backfill)
                    _arguments \
                        '--project-name[Project name]:name:' \
                        '--dry-run[Index into in-memory stores only]' \
                        '--max-files[Stop after this many documents]:count:' \
                        '--batch-size[Crawler batch size]:size:' \
                        '--verbose[Log pipeline events to stderr]' \
                        '1:repository path:_directories'
                    ;;
                tree)
                    _arguments \
                        '--project-name[Project to display]:name:' \
                        '--max-depth[Depth limit]:depth:' \
                        '--deps[Include per-file dependencies]'
                    ;;
                status)
                    _arguments \
                        '--json[Output as JSON]'
                    ;;
                completion)
                    _arguments \
                        '1:shell:(bash zsh fish)'
                    ;;
            esac
            ;;
    esac
}

_omnintel
`

const fishCompletionTemplate = `# Fish completion script for omnintel
# Installation:
#   1. Load completions for current session:
#      omnintel completion fish | source
#   2. Install permanently:
#      omnintel completion fish > ~/.config/fish/completions/omnintel.fish

# Commands
complete -c omnintel -f -n "__fish_use_subcommand" -a "serve" -d "Run the event consumer and ops listener"
complete -c omnintel -f -n "__fish_use_subcommand" -a "backfill" -d "Walk a repository and index it in-process"
complete -c omnintel -f -n "__fish_use_subcommand" -a "tree" -d "Show the indexed repository tree"
complete -c omnintel -f -n "__fish_use_subcommand" -a "status" -d "Show store connectivity and counts"
complete -c omnintel -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion script"

# Global flags
complete -c omnintel -l version -d "Show version and exit"
complete -c omnintel -l config -d "Path to omnintel.yaml" -r
complete -c omnintel -l json -d "Output as JSON where supported"
complete -c omnintel -s q -l quiet -d "Suppress progress output"
complete -c omnintel -l no-color -d "Disable colored output"

# serve command flags
complete -c omnintel -n "__fish_seen_subcommand_from serve" -l listen -d "Ops listener address" -r

# backfill command flags
complete -c omnintel -n "__fish_seen_subcommand_from backfill" -l project-name -d "Project name" -r
complete -c omnintel -n "__fish_seen_subcommand_from backfill" -l dry-run -d "Index into in-memory stores only"
complete -c omnintel -n "__fish_seen_subcommand_from backfill" -l max-files -d "Stop after this many documents" -r
complete -c omnintel -n "__fish_seen_subcommand_from backfill" -l batch-size -d "Crawler batch size" -r
complete -c omnintel -n "__fish_seen_subcommand_from backfill" -s v -l verbose -d "Log pipeline events to stderr"

# tree command flags
complete -c omnintel -n "__fish_seen_subcommand_from tree" -l project-name -d "Project to display" -r
complete -c omnintel -n "__fish_seen_subcommand_from tree" -l max-depth -d "Depth limit" -r
complete -c omnintel -n "__fish_seen_subcommand_from tree" -l deps -d "Include per-file dependencies"

# status command flags
complete -c omnintel -n "__fish_seen_subcommand_from status" -l json -d "Output as JSON"

# completion command arguments
complete -c omnintel -n "__fish_seen_subcommand_from completion" -f -a "bash" -d "Generate bash completion script"
complete -c omnintel -n "__fish_seen_subcommand_from completion" -f -a "zsh" -d "Generate zsh completion script"
complete -c omnintel -n "__fish_seen_subcommand_from completion" -f -a "fish" -d "Generate fish completion script"
`

// runCompletion executes the 'completion' CLI command, writing a
// shell-specific completion script to stdout.
func runCompletion(args []string) {
	fs := flag.NewFlagSet("completion", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: omnintel completion <shell>

Generate shell completion scripts for bash, zsh, or fish.

Arguments:
  shell    Shell type: bash, zsh, or fish (required)

Examples:
  source <(omnintel completion bash)
  omnintel completion zsh > "${fpath[1]}/_omnintel"
  omnintel completion fish > ~/.config/fish/completions/omnintel.fish

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		errors.FatalError(errors.NewInputError(
			"Invalid arguments",
			"The completion command requires exactly one argument: the shell name",
			"Run 'omnintel completion bash', 'omnintel completion zsh', or 'omnintel completion fish'",
		), false)
	}

	switch shell := fs.Arg(0); shell {
	case "bash":
		fmt.Print(bashCompletionTemplate)
	case "zsh":
		fmt.Print(zshCompletionTemplate)
	case "fish":
		fmt.Print(fishCompletionTemplate)
	default:
		errors.FatalError(errors.NewInputError(
			"Unsupported shell",
			fmt.Sprintf("Shell '%s' is not supported. Valid options: bash, zsh, fish", shell),
			"Run 'omnintel completion bash', 'omnintel completion zsh', or 'omnintel completion fish'",
		), false)
	}
}
