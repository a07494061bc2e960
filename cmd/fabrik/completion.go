package main

import (
	"fmt"
	"io"
)

func runCompletion(args []string, deps commandDeps) int {
	if len(args) != 1 {
		fmt.Fprintln(deps.Stderr, "usage: fabrik completion [bash|zsh]")
		return exitUsage
	}
	switch args[0] {
	case "bash":
		_, _ = io.WriteString(deps.Stdout, bashCompletionScript)
		return exitOK
	case "zsh":
		_, _ = io.WriteString(deps.Stdout, zshCompletionScript)
		return exitOK
	default:
		fmt.Fprintln(deps.Stderr, "usage: fabrik completion [bash|zsh]")
		return exitUsage
	}
}

const bashCompletionScript = `# Bash completion for fabrik
_fabrik_complete() {
  local cur prev
  _get_comp_words_by_ref -n : cur prev

  if [[ $COMP_CWORD -eq 1 ]]; then
    COMPREPLY=( $(compgen -W "server mcp pipeline tmsl bpa backup docs config completion version help" -- "$cur") )
    return
  fi

  case "${COMP_WORDS[1]}" in
    pipeline)
      if [[ $COMP_CWORD -eq 2 ]]; then
        COMPREPLY=( $(compgen -W "validate order schema deploy run" -- "$cur") )
      else
        COMPREPLY=( $(compgen -f -- "$cur") )
      fi
      ;;
    tmsl)
      if [[ $COMP_CWORD -eq 2 ]]; then
        COMPREPLY=( $(compgen -W "validate normalize template" -- "$cur") )
      else
        COMPREPLY=( $(compgen -f -- "$cur") )
      fi
      ;;
    bpa)
      if [[ $COMP_CWORD -eq 2 ]]; then
        COMPREPLY=( $(compgen -W "analyze rules" -- "$cur") )
      else
        COMPREPLY=( $(compgen -f -- "$cur") )
      fi
      ;;
    backup)
      if [[ $COMP_CWORD -eq 2 ]]; then
        COMPREPLY=( $(compgen -W "create list restore prune" -- "$cur") )
      fi
      ;;
    docs)
      if [[ $COMP_CWORD -eq 2 ]]; then
        COMPREPLY=( $(compgen -W "list lint" -- "$cur") )
      fi
      ;;
    config)
      if [[ $COMP_CWORD -eq 2 ]]; then
        COMPREPLY=( $(compgen -W "init install" -- "$cur") )
      else
        COMPREPLY=( $(compgen -d -- "$cur") )
      fi
      ;;
    completion)
      COMPREPLY=( $(compgen -W "bash zsh" -- "$cur") )
      ;;
  esac
}

complete -F _fabrik_complete fabrik
`

const zshCompletionScript = `#compdef fabrik
_fabrik_complete() {
  local -a commands
  commands=(
    'server:run the HTTP API server'
    'mcp:run the MCP server on stdio'
    'pipeline:validate, order, deploy, or run pipeline definitions'
    'tmsl:validate, normalize, or template TMSL models'
    'bpa:best-practice analysis'
    'backup:semantic model snapshots'
    'docs:embedded operator guides'
    'config:settings file and workspace assets'
    'completion:print a shell completion script'
    'version:print the version'
  )

  if (( CURRENT == 2 )); then
    _describe 'command' commands
    return
  fi

  case "$words[2]" in
    pipeline) _values 'pipeline command' validate order schema deploy run ;;
    tmsl) _values 'tmsl command' validate normalize template ;;
    bpa) _values 'bpa command' analyze rules ;;
    backup) _values 'backup command' create list restore prune ;;
    docs) _values 'docs command' list lint ;;
    config) _values 'config command' init install ;;
    completion) _values 'shell' bash zsh ;;
    *) _files ;;
  esac
}

_fabrik_complete "$@"
`
