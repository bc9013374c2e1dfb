package database

// karmaProcedureSQL mirrors karma.Aggregator.Compute so the batch job can run
// next to the data. Ids are stored as text by gorm, hence the text argument.
const karmaProcedureSQL = `
CREATE OR REPLACE FUNCTION calculate_user_karma(user_uuid text)
RETURNS integer AS $$
DECLARE
    net_post    bigint;
    net_comment bigint;
    pk          integer;
    ck          integer;
BEGIN
    SELECT COALESCE(SUM(upvotes - downvotes), 0) INTO net_post
      FROM posts WHERE author_id = user_uuid;
    SELECT COALESCE(SUM(upvotes - downvotes), 0) INTO net_comment
      FROM comments WHERE author_id = user_uuid;

    pk := floor(net_post::numeric / 10);
    ck := floor(net_comment::numeric / 10);

    UPDATE profiles
       SET post_karma = pk,
           comment_karma = ck,
           karma = pk + ck,
           karma_updated_at = now()
     WHERE id = user_uuid;
    IF NOT FOUND THEN
        RAISE EXCEPTION 'profile % not found', user_uuid USING ERRCODE = 'no_data_found';
    END IF;

    RETURN pk + ck;
END;
$$ LANGUAGE plpgsql;
`
