package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/madhatter5501/agentkanbd/internal/kanban"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage registered git repositories",
	}
	cmd.AddCommand(newProjectAddCmd(), newProjectListCmd())
	return cmd
}

func newProjectAddCmd() *cobra.Command {
	var name, repoPath, mainBranch string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a git repository as a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := buildEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			p := &kanban.Project{Name: name, RepoPath: repoPath, MainBranch: mainBranch}
			if err := eng.store.CreateProject(cmd.Context(), p); err != nil {
				return fmt.Errorf("create project: %w", err)
			}
			fmt.Printf("created project %s (%s)\n", p.ID, p.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&repoPath, "repo", "", "absolute path to the git repository")
	cmd.Flags().StringVar(&mainBranch, "main-branch", "main", "default branch new worktrees are rooted at")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("repo")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := buildEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			projects, err := eng.store.ListProjects(cmd.Context())
			if err != nil {
				return fmt.Errorf("list projects: %w", err)
			}
			for _, p := range projects {
				fmt.Printf("%s\t%s\t%s\n", p.ID, p.Name, p.RepoPath)
			}
			return nil
		},
	}
}
