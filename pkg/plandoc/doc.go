/*
Package plandoc parses the YAML front matter of PLAN and ROADMAP documents
— Markdown files fenced by a leading "---" block — into the structures the
scheduler needs: a plan's (phase, plan) id, its dependencies, its declared
read/write file sets, whether it runs autonomously, and its verification
manifest (must_pass / should_pass checks). FrontMatter.ToPlan converts a
parsed document directly into a types.Plan ready for storage.UpsertPlan.
Scan walks a project's spec directory for every PLAN document across its
phase subdirectories, the input to the sync_state reconciliation.
*/
package plandoc
