package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

var communitiesCmd = &cobra.Command{
	Use:   "communities",
	Short: "Browse and manage communities",
}

var communitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List communities, newest members first",
	Long: `List communities with optional category and text filters.

Examples:
  orkut communities list
  orkut communities list --category Humor
  orkut communities list --search rock --limit 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		text, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		req := newAPIClient().R().SetQueryParams(map[string]string{
			"limit":  strconv.Itoa(limit),
			"offset": strconv.Itoa(offset),
		})
		if category != "" {
			req.SetQueryParam("category", category)
		}
		if text != "" {
			req.SetQueryParam("search", text)
		}

		result, err := call(req, http.MethodGet, "/communities")
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(result)
		}

		communities, _ := result["communities"].([]interface{})
		if len(communities) == 0 {
			fmt.Println("No communities found")
			return nil
		}
		for _, raw := range communities {
			c, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			fmt.Printf("%-40s %-12s %8s members  %s\n", str(c, "name"), str(c, "category"), str(c, "members_count"), str(c, "id"))
		}
		fmt.Printf("\n%s of %s (source: %s)\n", strconv.Itoa(len(communities)), str(result, "total"), str(result, "source"))
		return nil
	},
}

var communitiesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a community (administrators only)",
	Long: `Create a community. The token must belong to an administrator, for example
one issued by "orkut admin token".

Examples:
  orkut communities create --name "Eu amo Go" --description "Gophers brasileiros" --category Tecnologia`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireToken(); err != nil {
			return err
		}
		body := map[string]interface{}{}
		for _, flag := range []string{"name", "description", "category", "privacy", "rules", "photo-url"} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				key := flag
				if flag == "photo-url" {
					key = "photo_url"
				}
				body[key] = v
			}
		}
		if tags, _ := cmd.Flags().GetStringSlice("tags"); len(tags) > 0 {
			body["tags"] = tags
		}

		result, err := call(newAPIClient().R().SetBody(body), http.MethodPost, "/communities")
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(result)
		}
		fmt.Println(str(result, "message"))
		if c, ok := result["community"].(map[string]interface{}); ok {
			fmt.Printf("ID: %s\n", str(c, "id"))
		}
		return nil
	},
}

var communitiesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Deactivate a community (administrators only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireToken(); err != nil {
			return err
		}
		result, err := call(newAPIClient().R().SetQueryParam("id", args[0]), http.MethodDelete, "/communities")
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(result)
		}
		fmt.Println(str(result, "message"))
		return nil
	},
}

func init() {
	communitiesCmd.AddCommand(communitiesListCmd)
	communitiesCmd.AddCommand(communitiesCreateCmd)
	communitiesCmd.AddCommand(communitiesDeleteCmd)

	communitiesListCmd.Flags().StringP("category", "c", "", "Category filter")
	communitiesListCmd.Flags().StringP("search", "s", "", "Text filter on name and description")
	communitiesListCmd.Flags().IntP("limit", "l", 20, "Maximum number of results")
	communitiesListCmd.Flags().IntP("offset", "o", 0, "Result offset for pagination")

	communitiesCreateCmd.Flags().String("name", "", "Community name (3-50 characters)")
	communitiesCreateCmd.Flags().String("description", "", "Description (10-500 characters)")
	communitiesCreateCmd.Flags().String("category", "", "Category")
	communitiesCreateCmd.Flags().String("privacy", "", "public, restricted or private")
	communitiesCreateCmd.Flags().String("rules", "", "Community rules")
	communitiesCreateCmd.Flags().String("photo-url", "", "Photo URL")
	communitiesCreateCmd.Flags().StringSlice("tags", nil, "Tags (comma-separated or repeated)")
	_ = communitiesCreateCmd.MarkFlagRequired("name")
	_ = communitiesCreateCmd.MarkFlagRequired("description")
	_ = communitiesCreateCmd.MarkFlagRequired("category")
}
