package mcpserver

// ContractURI is the resource URI of the archive entry contract.
const ContractURI = "lorekeeper://archive-contract"

// ArchiveContract describes how LLM consumers should create, update and
// link archive entries.
const ArchiveContract = `# Lorekeeper Archive Contract

The archive is a per-user knowledge base of entries. Each entry has an
entity (display name), a slug (stable identifier), a Markdown body and a
set of lowercase tags. Entries link to each other with typed edges.

## Entries

- ` + "`entity`" + ` is REQUIRED and at most 500 characters.
- ` + "`slug`" + ` is optional. When omitted it is derived from the entity
  (lowercase, hyphenated). If the slug is taken, ` + "`-2`" + `, ` + "`-3`" + `, ...
  is appended and the response reports ` + "`slugAdjusted: true`" + `.
- ` + "`tags`" + ` are lowercased and deduplicated. A comma-separated string is
  accepted wherever a list is expected.
- Slugs are scoped to the user. Always reuse the slug returned by a create
  or search call.

## Updating

archive_update accepts loose field names:

| canonical   | also accepted                                      |
|-------------|----------------------------------------------------|
| slug        | id, entry, file, targetSlug, identifier            |
| entity      | newEntity, title, name, rename                     |
| body        | fullBody, replaceBody, content, text, replace      |
| appendBody  | append, addition, add, extra                       |
| addTags     | addTag, tagsAdd, tagAdd                            |
| removeTags  | removeTag, tagsRemove, tagRemove                   |
| setTags     | tags                                               |

Rules:

1. Send only one of ` + "`body`" + ` (full replacement) or ` + "`appendBody`" + `.
   If both are sent, the full body wins and the append is ignored.
2. ` + "`setTags`" + ` is the desired final tag set; the archive computes the
   additions and removals. An empty array clears every tag. A tag both
   added and removed is kept.
3. The strings "false", "none" and "null" count as absent.
4. An update that changes nothing reports ` + "`noOp: true`" + `.

## Surgical edits

Prefer archive_apply_edits for small changes to long bodies. Each edit is
` + "`{mode, target, text?, occurrences?}`" + ` where mode is one of replace,
insertAfter, insertBefore or remove, and occurrences is first (default) or
all. Edits apply in order, each on the result of the previous ones. Edits
whose target is missing are skipped and reported, never fatal.

## Links

archive_link connects two existing slugs with a type (default "related").
Linking the same pair and type twice is a no-op. Deleting an entry removes
every link and pin that references it.

## Errors

Failed calls return ` + "`{code, error, hints[]}`" + `. Follow the hints and retry.
`
